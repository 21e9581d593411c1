package bootstrap

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/luanalves/realestate-backend-sub002/internal/config"
	"github.com/luanalves/realestate-backend-sub002/internal/metrics"
	"github.com/luanalves/realestate-backend-sub002/internal/services"
	"github.com/luanalves/realestate-backend-sub002/internal/store"
)

// ErrUsage is returned for an unknown or incomplete app subcommand
var ErrUsage = errors.New("usage: app create|rotate|deactivate|list")

// RunAppCommand runs one application-admin subcommand against the configured
// database and writes its result to out.
func RunAppCommand(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	if len(args) == 0 {
		return ErrUsage
	}

	if err := validateDatabaseConfig(cfg); err != nil {
		return err
	}
	db, err := initializeDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	credentials := services.NewCredentialService(db, cfg, metrics.NewNoopMetrics())

	switch args[0] {
	case "create":
		return createApp(ctx, credentials, args[1:], out)
	case "rotate":
		if len(args) != 2 {
			return fmt.Errorf("%w: app rotate <client_id>", ErrUsage)
		}
		app, err := credentials.RegenerateSecret(ctx, args[1])
		if err != nil {
			return err
		}
		printSecret(out, app)
		return nil
	case "deactivate":
		if len(args) != 2 {
			return fmt.Errorf("%w: app deactivate <client_id>", ErrUsage)
		}
		if err := credentials.DeactivateApplication(ctx, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(out, "Application %s deactivated, its tokens are revoked\n", args[1])
		return nil
	case "list":
		return listApps(ctx, credentials, out)
	default:
		return fmt.Errorf("%w: unknown subcommand %q", ErrUsage, args[0])
	}
}

func createApp(
	ctx context.Context,
	credentials *services.CredentialService,
	args []string,
	out io.Writer,
) error {
	fs := flag.NewFlagSet("app create", flag.ContinueOnError)
	fs.SetOutput(out)
	name := fs.String("name", "", "Application name (required)")
	scopes := fs.String("scopes", "", "Space-separated scopes the application may request")
	createdBy := fs.String("created-by", "cli", "Recorded creator")
	if err := fs.Parse(args); err != nil {
		return err
	}

	app, err := credentials.CreateApplication(ctx, services.CreateApplicationRequest{
		Name:      *name,
		Scopes:    *scopes,
		CreatedBy: *createdBy,
	})
	if err != nil {
		return err
	}
	printSecret(out, app)
	return nil
}

func printSecret(out io.Writer, app *services.ApplicationWithSecret) {
	fmt.Fprintf(out, "Name:          %s\n", app.Name)
	fmt.Fprintf(out, "Client ID:     %s\n", app.ClientID)
	fmt.Fprintf(out, "Client secret: %s\n", app.ClientSecretPlain)
	fmt.Fprintln(out, "Store the secret now. It cannot be shown again.")
}

func listApps(ctx context.Context, credentials *services.CredentialService, out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CLIENT ID\tNAME\tSCOPES\tACTIVE\tCREATED")

	for page := 1; ; page++ {
		apps, pagination, err := credentials.ListApplications(
			ctx,
			store.NewPaginationParams(page, 50, ""),
		)
		if err != nil {
			return err
		}
		for _, app := range apps {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n",
				app.ClientID,
				app.Name,
				app.Scopes,
				app.Active,
				app.CreatedAt.Format("2006-01-02"),
			)
		}
		if !pagination.HasNext {
			break
		}
	}
	return tw.Flush()
}
