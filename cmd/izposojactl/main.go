package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/erazemk/izposoja/internal/auth"
	"github.com/erazemk/izposoja/internal/bootstrap"
	"github.com/erazemk/izposoja/internal/config"
	"github.com/erazemk/izposoja/internal/db"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/store"
)

const usage = `Usage: izposojactl <command> [flags]

Commands:
  init      create the database and the first admin account
  useradd   create a user with a random password
  grant     give a user a role (owners also need -department)
  revoke    take a role away from a user
  roles     list a user's roles
  migrate   apply pending schema migrations

Every command accepts -db <path> (env DB_PATH, default: izposoja.db).
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cmds := map[string]func(*config.Config, []string) error{
		"init":    cmdInit,
		"useradd": cmdUserAdd,
		"grant":   cmdGrant,
		"revoke":  cmdRevoke,
		"roles":   cmdRoles,
		"migrate": cmdMigrate,
	}
	cmd, ok := cmds[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n%s", os.Args[1], usage)
		os.Exit(1)
	}
	if err := cmd(cfg, os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func flags(name string, cfg *config.Config) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to SQLite database file")
	return fs
}

// open opens and migrates the database at path.
func open(path string) (*store.Store, func(), error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	return store.New(database), func() { database.Close() }, nil
}

func cmdInit(cfg *config.Config, args []string) error {
	fs := flags("init", cfg)
	fs.StringVar(&cfg.AdminUser, "user", cfg.AdminUser, "admin username")
	fs.Parse(args)

	if _, err := os.Stat(cfg.DBPath); err == nil {
		return fmt.Errorf("database file %s already exists", cfg.DBPath)
	}

	s, closeDB, err := open(cfg.DBPath)
	if err != nil {
		os.Remove(cfg.DBPath)
		return err
	}
	defer closeDB()

	admin, err := bootstrap.EnsureAdmin(context.Background(), s, cfg.AdminUser)
	if err != nil {
		closeDB()
		os.Remove(cfg.DBPath)
		return err
	}

	fmt.Printf("Database created: %s\n", cfg.DBPath)
	fmt.Println("Schema initialized.")
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", admin.Username)
	fmt.Printf("  Password: %s\n", admin.Password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	return nil
}

func cmdUserAdd(cfg *config.Config, args []string) error {
	fs := flags("useradd", cfg)
	fullName := fs.String("name", "", "full name")
	phone := fs.String("phone", "", "contact phone")
	role := fs.String("role", "", "role to grant right away")
	dept := fs.String("department", "", "department for the owner role")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return errors.New("usage: izposojactl useradd [flags] <username>")
	}
	username := strings.TrimSpace(fs.Arg(0))

	s, closeDB, err := open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer closeDB()

	password, err := bootstrap.GeneratePassword(16)
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	ctx := context.Background()
	err = s.WithTx(ctx, func(tx *store.Store) error {
		u, err := tx.CreateUser(ctx, username, strings.TrimSpace(*fullName), strings.TrimSpace(*phone), hash)
		if err != nil {
			return err
		}
		if *role == "" {
			return nil
		}
		return grant(ctx, tx, u, *role, *dept)
	})
	if errors.Is(err, model.ErrConflict) {
		return fmt.Errorf("user %q already exists", username)
	}
	if err != nil {
		return err
	}

	fmt.Printf("User created: %s\n", username)
	fmt.Printf("  Password: %s\n", password)
	return nil
}

func cmdGrant(cfg *config.Config, args []string) error {
	fs := flags("grant", cfg)
	dept := fs.String("department", "", "department for the owner role")
	fs.Parse(args)

	if fs.NArg() != 2 {
		return errors.New("usage: izposojactl grant [-department <name>] <username> <role>")
	}

	s, closeDB, err := open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer closeDB()

	ctx := context.Background()
	u, err := activeUser(ctx, s, fs.Arg(0))
	if err != nil {
		return err
	}
	if err := grant(ctx, s, u, fs.Arg(1), *dept); err != nil {
		return err
	}
	fmt.Printf("Granted %s to %s\n", fs.Arg(1), u.Username)
	return nil
}

func cmdRevoke(cfg *config.Config, args []string) error {
	fs := flags("revoke", cfg)
	dept := fs.String("department", "", "department of the owner role")
	fs.Parse(args)

	if fs.NArg() != 2 {
		return errors.New("usage: izposojactl revoke [-department <name>] <username> <role>")
	}
	role := fs.Arg(1)

	s, closeDB, err := open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer closeDB()

	ctx := context.Background()
	u, err := activeUser(ctx, s, fs.Arg(0))
	if err != nil {
		return err
	}
	assignments, err := s.RoleAssignments(ctx, u.ID)
	if err != nil {
		return err
	}
	for _, a := range assignments {
		if a.Role != role || (*dept != "" && (a.Department == nil || *a.Department != *dept)) {
			continue
		}
		if err := s.RevokeRole(ctx, a.ID); err != nil {
			return err
		}
		fmt.Printf("Revoked %s from %s\n", describe(a), u.Username)
		return nil
	}
	return fmt.Errorf("%s does not hold role %s", u.Username, role)
}

func cmdRoles(cfg *config.Config, args []string) error {
	fs := flags("roles", cfg)
	fs.Parse(args)

	if fs.NArg() != 1 {
		return errors.New("usage: izposojactl roles <username>")
	}

	s, closeDB, err := open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer closeDB()

	ctx := context.Background()
	u, err := activeUser(ctx, s, fs.Arg(0))
	if err != nil {
		return err
	}
	assignments, err := s.RoleAssignments(ctx, u.ID)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tROLE\tDEPARTMENT\tGRANTED")
	for _, a := range assignments {
		d := "-"
		if a.Department != nil {
			d = *a.Department
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", strconv.FormatInt(a.ID, 10), a.Role, d, a.CreatedAt.Format("2006-01-02"))
	}
	return tw.Flush()
}

func cmdMigrate(cfg *config.Config, args []string) error {
	fs := flags("migrate", cfg)
	fs.Parse(args)

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		return err
	}
	version, dirty, err := db.Version(database)
	if err != nil {
		return err
	}
	fmt.Printf("Schema version %d (dirty: %t)\n", version, dirty)
	return nil
}

func activeUser(ctx context.Context, s *store.Store, username string) (*model.User, error) {
	u, err := s.UserByUsername(ctx, username)
	if errors.Is(err, model.ErrNotFound) || (err == nil && u.DeletedAt != nil) {
		return nil, fmt.Errorf("no user %q", username)
	}
	return u, err
}

// grant assigns role to u, checking the department the same way the HTTP
// API does.
func grant(ctx context.Context, s *store.Store, u *model.User, role, dept string) error {
	if !model.ValidRole(role) {
		return fmt.Errorf("unknown role %q", role)
	}
	dept = strings.TrimSpace(dept)

	var d *string
	switch {
	case role == model.RoleOwner && dept == "":
		return errors.New("owner role requires -department")
	case role != model.RoleOwner && dept != "":
		return errors.New("only the owner role is tied to a department")
	case role == model.RoleOwner:
		if _, err := s.DepartmentByName(ctx, dept); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return fmt.Errorf("no department %q", dept)
			}
			return err
		}
		d = &dept
	}

	_, err := s.AssignRole(ctx, u.ID, role, d)
	return err
}

func describe(a model.RoleAssignment) string {
	if a.Department != nil {
		return a.Role + " (" + *a.Department + ")"
	}
	return a.Role
}
