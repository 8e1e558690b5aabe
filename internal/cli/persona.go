package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/ashureev/escape-labs/internal/agent"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

func newPersonaCmd(opts *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "persona",
		Short: "Serve the Gemini persona over gRPC",
		Long:  "Run a persona sidecar that game servers started with LLM_PROVIDER=grpc can call.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			logger := opts.logger(cmd.ErrOrStderr())

			lis, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", listen, err)
			}
			provider := agent.NewGeminiProvider(cfg.LLM.ModelName, agent.DefaultKeys(cfg.LLM.SecretsFile))
			fmt.Fprintf(cmd.OutOrStdout(), "persona sidecar listening on %s\n", lis.Addr())
			return servePersona(cmd.Context(), lis, provider, logger)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":50051", "Address to listen on")
	return cmd
}

// servePersona serves provider on lis until ctx is done.
func servePersona(ctx context.Context, lis net.Listener, provider agent.Provider, logger *slog.Logger) error {
	srv := grpc.NewServer()
	agent.RegisterPersonaServer(srv, provider, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		srv.GracefulStop()
		return nil
	})
	return g.Wait()
}
