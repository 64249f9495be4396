package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/talentmesh/talentmesh"
	"github.com/talentmesh/talentmesh/agent"
	anthropicmodel "github.com/talentmesh/talentmesh/model/anthropic"
	openaimodel "github.com/talentmesh/talentmesh/model/openai"
	"github.com/talentmesh/talentmesh/retrieval"
	"github.com/talentmesh/talentmesh/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Starts the TalentMesh core and exposes the turn, intent, workflow and webhook endpoints as a JSON API over HTTP.`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetString("port")
		modelName, _ := cmd.Flags().GetString("model")
		redisAddr, _ := cmd.Flags().GetString("redis")
		workflowDir, _ := cmd.Flags().GetString("workflows")
		corpusDir, _ := cmd.Flags().GetString("corpus")

		logger := buildLogger(cmd)

		mesh, err := newMesh(cmd, modelName, redisAddr)
		if err != nil {
			fmt.Printf("Error initializing talentmesh: %v\n", err)
			os.Exit(1)
		}

		if workflowDir != "" {
			catalog := agent.NewBuiltinCatalog(mesh.Gateway())
			loaded, failed, err := mesh.Engine().LoadDir(workflowDir, catalog)
			if err != nil {
				fmt.Printf("Error loading workflows: %v\n", err)
				os.Exit(1)
			}
			for path, loadErr := range failed {
				logger.Warn("workflow definition skipped", "path", path, "error", loadErr.Error())
			}
			logger.Info("workflow definitions loaded", "count", len(loaded))
		}

		if corpusDir != "" {
			version, err := ingestCorpus(cmd.Context(), mesh, corpusDir)
			if err != nil {
				fmt.Printf("Error ingesting corpus: %v\n", err)
				os.Exit(1)
			}
			logger.Info("corpus ingested", "version", version)
		}

		sweepCtx, stopSweeper := context.WithCancel(context.Background())
		defer stopSweeper()
		go mesh.RunSweeper(sweepCtx, time.Minute, 24*time.Hour, 7*24*time.Hour)

		srv := &http.Server{
			Addr:    ":" + port,
			Handler: mesh.Handler(),
		}

		serverErrors := make(chan error, 1)
		go func() {
			fmt.Printf("Starting TalentMesh server on %s\n", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)

		case sig := <-shutdown:
			fmt.Printf("\nStart shutdown... Signal: %v\n", sig)
			stopSweeper()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				fmt.Printf("Graceful shutdown did not complete in %v: %v\n", 5*time.Second, err)
				if err := srv.Close(); err != nil {
					fmt.Printf("Error killing server: %v\n", err)
				}
			}
			fmt.Println("TalentMesh server stopped gracefully")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	serveCmd.Flags().String("model", "mock", "Model adapter (mock, anthropic, openai)")
	serveCmd.Flags().String("redis", "", "Redis address for the session store (empty for in-memory)")
	serveCmd.Flags().String("workflows", "", "Directory of extra workflow definition YAML files")
	serveCmd.Flags().String("corpus", "", "Directory of .md/.txt documents to ingest for retrieval")
}

// newMesh builds a TalentMesh instance from the serve flags.
func newMesh(cmd *cobra.Command, modelName, redisAddr string) (*talentmesh.TalentMesh, error) {
	logger := buildLogger(cmd)

	return talentmesh.New(func(o *talentmesh.Options) {
		o.Logger = logger

		switch modelName {
		case "anthropic":
			o.Model = anthropicmodel.NewModel()
		case "openai":
			m := openaimodel.NewModel()
			o.Model = m
			o.Embedder = m
			// text-embedding-3-small vectors.
			o.EmbeddingDimensions = 1536
		}

		if redisAddr != "" {
			client := redis.NewClient(&redis.Options{Addr: redisAddr})
			o.SessionStore = session.NewRedisStore(client)
		}
	})
}

// ingestCorpus loads every .md and .txt file under dir as one retrieval
// document keyed by its relative path.
func ingestCorpus(ctx context.Context, mesh *talentmesh.TalentMesh, dir string) (string, error) {
	var docs []retrieval.Document
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".txt" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		docs = append(docs, retrieval.Document{ID: rel, Text: string(data)})
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("no .md or .txt documents under %s", dir)
	}
	return mesh.IngestDocuments(ctx, docs)
}
