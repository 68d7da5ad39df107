// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// serveCommand runs the long-lived session proxy
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the local session proxy (exits after the inactivity timeout)",
		Action: r.Serve,
	}
}

// initCommand allocates a client session
func initCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Allocate a client id on the proxy, starting it if needed",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Init,
	}
}

// pingCommand checks proxy liveness
func pingCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "ping",
		Usage:  "Check whether the proxy is running",
		Action: r.Ping,
	}
}

// statusCommand prints proxy diagnostics
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show proxy session count and idle timeout",
		Action: r.Status,
	}
}

// configCommand handles configuration files
func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Write an example config.toml",
				Action: r.ConfigInit,
			},
			{
				Name:   "check",
				Usage:  "Validate the configuration required by serve",
				Action: r.ConfigCheck,
			},
		},
	}
}

func clientIDFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "client-id",
		Aliases:  []string{"i"},
		Usage:    "Client id returned by `spt init`",
		Sources:  cli.EnvVars("SPT_CLIENT_ID"),
		Required: true,
	}
}

// apiCommand handles forwarded upstream calls
func apiCommand(r *Runner) *cli.Command {
	bodyCommand := func(name, method string) *cli.Command {
		return &cli.Command{
			Name:  name,
			Usage: "Forward a " + method + " with an optional JSON body",
			Arguments: []cli.Argument{
				&cli.StringArg{
					Name: "path",
				},
			},
			Flags: []cli.Flag{
				clientIDFlag(),
				&cli.StringFlag{
					Name:    "data",
					Aliases: []string{"d"},
					Usage:   "JSON object to send",
				},
				&cli.StringSliceFlag{
					Name:    "query",
					Aliases: []string{"q"},
					Usage:   "Query parameter as key=value (repeatable)",
				},
				&cli.BoolFlag{
					Name:  "json",
					Usage: "Output compact JSON",
				},
			},
			Action: r.APISend(method),
		}
	}

	return &cli.Command{
		Name:  "api",
		Usage: "Forward raw Web API calls through the proxy",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Forward a GET, prints the JSON response",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					clientIDFlag(),
					&cli.StringSliceFlag{
						Name:    "query",
						Aliases: []string{"q"},
						Usage:   "Query parameter as key=value (repeatable)",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output compact JSON",
					},
				},
				Action: r.APIGet,
			},
			bodyCommand("put", "PUT"),
			bodyCommand("post", "POST"),
			bodyCommand("delete", "DELETE"),
		},
	}
}
