package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wbrown/janus-tabular/tabular/catalog"
	"github.com/wbrown/janus-tabular/tabular/logger"
	"github.com/wbrown/janus-tabular/tabular/server"
)

// Version is stamped at build time with -ldflags
var Version = "dev"

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the dataset control API",
	RunE:    runServe,
}

var servePort uint

func init() {
	serveCmd.Flags().UintVarP(&servePort, "port", "p", DefaultPort, "port to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("port") {
		config.Port = servePort
	}

	c := catalog.New(config.CatalogOptions(annotationHandler()))
	s := server.NewServer(fmt.Sprintf(":%d", config.Port), c)
	s.Version = Version

	errc := make(chan error, 1)
	go func() { errc <- s.ListenAndServe() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-errc:
		c.Close()
		return err
	case got := <-sig:
		logger.Logger.Infow("Shutting down", "signal", got.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}
