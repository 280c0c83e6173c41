package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Ryanakml/pdf-chatbots/api"
	"github.com/Ryanakml/pdf-chatbots/app"
	"github.com/Ryanakml/pdf-chatbots/chat"
	"github.com/Ryanakml/pdf-chatbots/config"
	"github.com/Ryanakml/pdf-chatbots/ingestion"
	"github.com/Ryanakml/pdf-chatbots/vectorstore"
)

const shutdownTimeout = 15 * time.Second

var (
	configPath string
	debug      bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "pdfchat",
		Short:        "Chat with PDF documents",
		Long:         "Index PDF documents into a vector store and answer questions grounded in their text.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable development logging")

	root.AddCommand(newServeCmd(), newMigrateCmd(), newIngestCmd(), newAskCmd(), newClearCmd())
	return root
}

// bootstrap loads and validates configuration and builds the logger and
// service container shared by every command.
func bootstrap(ctx context.Context) (*app.Container, *zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	return app.New(ctx, cfg, logger), logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			c, logger, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			defer c.Close()

			if c.Config().Vector.Backend == config.VectorPostgres {
				if err := c.Migrate(ctx); err != nil {
					return fmt.Errorf("migrate schema: %w", err)
				}
			}

			ingester, err := c.Ingestion()
			if err != nil {
				return err
			}
			chatSvc, err := c.Chat()
			if err != nil {
				return err
			}
			chats, err := c.Chats()
			if err != nil {
				return err
			}
			store, err := c.Storage()
			if err != nil {
				return err
			}

			handler := api.New(api.Deps{
				Ingester: ingester,
				Asker:    chatSvc,
				Chats:    chats,
				Storage:  store,
				APIKey:   c.Config().APIKey,
				Logger:   logger.Named("api"),
			})

			srv := &http.Server{
				Addr:              net.JoinHostPort("", c.Config().Port),
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("http server listening", zap.String("addr", srv.Addr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("http server: %w", err)
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancelShutdown()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the Postgres schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			c, logger, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			defer c.Close()

			if err := c.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate schema: %w", err)
			}
			logger.Info("schema ready", zap.Int("dimension", c.Config().Embeddings.Dimension))
			return nil
		},
	}
}

func newIngestCmd() *cobra.Command {
	var fileKey, file string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index a PDF into its namespace",
		Long: `Fetches the PDF stored under --file-key and indexes it.
With --file the local PDF is indexed under the namespace of --file-key instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			c, logger, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			defer c.Close()

			svc, err := c.Ingestion()
			if err != nil {
				return err
			}

			start := time.Now()
			var res ingestion.Result
			if file != "" {
				res, err = svc.IngestFile(ctx, fileKey, file)
			} else {
				res, err = svc.IngestDocument(ctx, fileKey)
			}
			if err != nil {
				return fmt.Errorf("ingestion failed: %w", err)
			}

			cmd.Printf("indexed %d chunks from %d pages into namespace %q in %s\n",
				res.VectorsUpserted, res.Pages, res.Namespace, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVar(&fileKey, "file-key", "", "storage key of the document")
	cmd.Flags().StringVar(&file, "file", "", "local PDF to index instead of fetching from storage")
	_ = cmd.MarkFlagRequired("file-key")
	return cmd
}

func newAskCmd() *cobra.Command {
	var fileKey, question string

	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Ask a question about an indexed document",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(question) == "" {
				cmd.Print("Enter your question: ")
				scanner := bufio.NewScanner(cmd.InOrStdin())
				if scanner.Scan() {
					question = scanner.Text()
				}
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("read question: %w", err)
				}
			}

			ctx, cancel := signalContext()
			defer cancel()

			c, logger, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			defer c.Close()

			svc, err := c.Chat()
			if err != nil {
				return err
			}

			resp, err := svc.Ask(ctx, chat.AskRequest{FileKey: fileKey, Question: question})
			if err != nil {
				return fmt.Errorf("chat failed: %w", err)
			}

			cmd.Println(resp.Answer)
			if len(resp.Sources) > 0 {
				cmd.Println()
				cmd.Println("Sources:")
				for i, source := range resp.Sources {
					cmd.Printf("%d. page %d (score %.3f)\n", i+1, source.PageNumber, source.Score)
					if source.Snippet != "" {
						cmd.Printf("   %s\n", source.Snippet)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fileKey, "file-key", "", "storage key of the document to ask about")
	cmd.Flags().StringVar(&question, "question", "", "question to ask")
	_ = cmd.MarkFlagRequired("file-key")
	return cmd
}

func newClearCmd() *cobra.Command {
	var fileKey string
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove a document's vectors and graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				cmd.Printf("This will permanently delete the indexed data for %q. Continue? [y/N]: ", fileKey)
				scanner := bufio.NewScanner(cmd.InOrStdin())
				if !scanner.Scan() {
					if err := scanner.Err(); err != nil {
						return fmt.Errorf("read confirmation: %w", err)
					}
					cmd.Println("clear aborted")
					return nil
				}
				answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
				if answer != "y" && answer != "yes" {
					cmd.Println("clear aborted")
					return nil
				}
			}

			ctx, cancel := signalContext()
			defer cancel()

			c, logger, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			defer c.Close()

			namespace := vectorstore.Namespace(fileKey, c.Config().Vector.Disambiguate)

			index, err := c.Index()
			if err != nil {
				return err
			}
			if err := index.DeleteNamespace(ctx, namespace); err != nil {
				return fmt.Errorf("delete vectors: %w", err)
			}
			cmd.Printf("cleared vectors in namespace %q\n", namespace)

			graph, err := c.Graph()
			if err != nil {
				return err
			}
			if graph != nil {
				if err := graph.DeleteDocument(ctx, namespace); err != nil {
					return fmt.Errorf("clear neo4j: %w", err)
				}
				cmd.Println("Neo4j document graph cleared")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fileKey, "file-key", "", "storage key of the document")
	cmd.Flags().BoolVar(&confirmed, "confirm", false, "skip confirmation prompt")
	_ = cmd.MarkFlagRequired("file-key")
	return cmd
}
