package main

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/server"
)

var port string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and the chat websocket",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if !cfg.Log.Development {
			gin.SetMode(gin.ReleaseMode)
		}
		if port != "" {
			cfg.Server.Port = port
		}

		srv := server.New(server.Config{
			Port:            cfg.Server.Port,
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		}, a.svc, a.log)
		return srv.Run(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVarP(&port, "port", "p", "", "port to listen on (default from config)")
	rootCmd.AddCommand(serveCmd)
}
