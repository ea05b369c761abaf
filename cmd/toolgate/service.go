package main

import (
	"context"
	"fmt"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/toolgate/toolgate/internal/app"
)

// program adapts App to the system service manager's start/stop contract.
type program struct {
	cfgPath string
	app     *app.App
	cancel  context.CancelFunc
	done    chan struct{}
}

func (p *program) Start(_ service.Service) error {
	a, err := buildApp(p.cfgPath)
	if err != nil {
		return err
	}
	p.app = a

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	if err := a.Start(ctx); err != nil {
		cancel()
		return err
	}
	go func() {
		defer close(p.done)
		<-ctx.Done()
		a.Stop()
	}()
	return nil
}

func (p *program) Stop(_ service.Service) error {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
	return nil
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service <install|uninstall|start|stop|run>",
		Short: "Manage toolgate as a system service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")

			svcConfig := &service.Config{
				Name:        "toolgate",
				DisplayName: "Toolgate",
				Description: "Confirmation gateway for MCP tool servers",
				Arguments:   []string{"service", "run"},
			}
			if cfgPath != "" {
				svcConfig.Arguments = append(svcConfig.Arguments, "--config", cfgPath)
			}

			svc, err := service.New(&program{cfgPath: cfgPath}, svcConfig)
			if err != nil {
				return fmt.Errorf("create service: %w", err)
			}

			switch args[0] {
			case "install":
				return svc.Install()
			case "uninstall":
				return svc.Uninstall()
			case "start":
				return svc.Start()
			case "stop":
				return svc.Stop()
			case "run":
				return svc.Run()
			default:
				return fmt.Errorf("unknown service action %q", args[0])
			}
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}
