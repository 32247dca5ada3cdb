package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"epicollect/api/internal/auth"
	"epicollect/api/internal/cache"
	"epicollect/api/internal/project"
	"epicollect/api/internal/rbac"
	"epicollect/api/internal/store"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer e.close()
			if err := store.ApplyMigrations(cmd.Context(), e.store.DB()); err != nil {
				return err
			}
			e.log.Info(cmd.Context(), "migrations applied")
			return nil
		},
	}
}

type importOptions struct {
	name   string
	access string
	ref    string
}

func newImportStructureCommand(opts *rootOptions) *cobra.Command {
	iopts := &importOptions{}
	cmd := &cobra.Command{
		Use:   "import-structure <slug> <file>",
		Short: "Create or replace a project from a YAML or JSON structure file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			slug, path := args[0], args[1]

			row, err := projectRow(slug, path, iopts)
			if err != nil {
				return err
			}

			e, err := setup(ctx, opts, true)
			if err != nil {
				return err
			}
			defer e.close()

			if existing, err := e.store.GetProjectBySlug(ctx, slug); err == nil {
				row.Ref = existing.Ref
			}
			saved, err := e.store.UpsertProject(ctx, row)
			if err != nil {
				return err
			}

			if strings.TrimSpace(e.cfg.RedisURL) != "" {
				if c, err := cache.NewRedisProjects(e.cfg.RedisURL, e.cfg.StructureCacheTTL); err != nil {
					e.log.Warn(ctx, "structure cache not invalidated", "slug", slug, "error", err)
				} else {
					defer c.Close()
					if err := c.Invalidate(ctx, slug); err != nil {
						e.log.Warn(ctx, "structure cache not invalidated", "slug", slug, "error", err)
					}
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "project %s imported (id %d)\n", saved.Slug, saved.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&iopts.name, "name", "", "project name (defaults to the slug)")
	cmd.Flags().StringVar(&iopts.access, "access", string(project.AccessPublic), "project access (public|private)")
	cmd.Flags().StringVar(&iopts.ref, "ref", "", "project ref for new projects (defaults to a random uuid)")
	return cmd
}

// projectRow reads and validates a structure file and returns the row to
// store. The structure is stored as JSON whatever the file format.
func projectRow(slug, path string, o *importOptions) (store.Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return store.Project{}, fmt.Errorf("read structure: %w", err)
	}
	structure, err := project.ParseStructure(data)
	if err != nil {
		return store.Project{}, err
	}

	access := project.Access(o.access)
	if access != project.AccessPublic && access != project.AccessPrivate {
		return store.Project{}, fmt.Errorf("unknown access %q", o.access)
	}
	name := o.name
	if name == "" {
		name = slug
	}
	ref := o.ref
	if ref == "" {
		ref = strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	if _, err := project.New(0, ref, slug, name, access, structure); err != nil {
		return store.Project{}, err
	}
	encoded, err := json.Marshal(structure)
	if err != nil {
		return store.Project{}, fmt.Errorf("encode structure: %w", err)
	}
	return store.Project{Ref: ref, Slug: slug, Name: name, Access: string(access), Structure: encoded}, nil
}

func newGrantRoleCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "grant-role <slug> <user-id> <role>",
		Short: "Assign a project role (viewer, collector, curator, manager, creator)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || userID <= 0 {
				return fmt.Errorf("invalid user id %q", args[1])
			}
			role := rbac.Normalize(args[2])
			if role == rbac.RoleNone {
				return fmt.Errorf("unknown role %q", args[2])
			}

			e, err := setup(ctx, opts, true)
			if err != nil {
				return err
			}
			defer e.close()

			p, err := e.store.GetProjectBySlug(ctx, args[0])
			if err != nil {
				return err
			}
			if err := e.store.GrantRole(ctx, p.ID, userID, role); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d is %s of %s\n", userID, role, p.Slug)
			return nil
		},
	}
}

func newIssueTokenCommand(opts *rootOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "issue-token <user-id>",
		Short: "Print a bearer token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || userID <= 0 {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			e, err := setup(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			token, err := auth.IssueToken([]byte(e.cfg.JWTSecret), userID, name, e.cfg.AccessTTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name carried in the token")
	return cmd
}
