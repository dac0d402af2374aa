package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/akamensky/argparse"

	"go_fast_push/constants"
	"go_fast_push/server/controller"
)

func main() {
	args := argparse.NewParser("server", constants.Title)

	bind := args.String("l", "listen", &argparse.Options{Required: false, Help: "Listen on address",
		Default: "0.0.0.0"})
	mptcp := args.Flag("m", "mptcp", &argparse.Options{Help: "Enable Multipath TCP"})
	port := args.Int("p", "port", &argparse.Options{Required: false, Help: "Listening port",
		Default: constants.DEFAULT_PORT})
	root := args.String("r", "root", &argparse.Options{Required: false,
		Help: "Root path for storing received files", Default: constants.DEFAULT_RECEIVE_ROOT})

	err := args.Parse(os.Args)

	if err != nil {
		fmt.Print(args.Usage(err))
		os.Exit(1)
	}

	// Create the receive root before accepting any data.
	if err := os.MkdirAll(*root, 0o755); err != nil {
		fmt.Println("Could not create receive root", *root)
		os.Exit(1)
	}

	bindTo := *bind + ":" + strconv.Itoa(*port)

	new(controller.Server).StartListening(*root, bindTo, *mptcp)
}
