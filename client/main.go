package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/akamensky/argparse"
	"golang.org/x/net/ipv4"

	"go_fast_push/client/comms"
	"go_fast_push/constants"
	"go_fast_push/fileio"
)

func main() {
	args := argparse.NewParser("client", constants.Title)

	bind := args.String("a", "address", &argparse.Options{Required: true, Help: "Target host address"})
	dscp := args.Int("d", "dscp", &argparse.Options{Required: false, Help: "DSCP field for QoS",
		Default: constants.DEFAULT_DSCP})
	paths := args.StringList("f", "file", &argparse.Options{Required: true,
		Help: "File or directory to send (repeatable)"})
	mptcp := args.Flag("m", "mptcp", &argparse.Options{Help: "Enable Multipath TCP"})
	port := args.Int("p", "port", &argparse.Options{Required: false, Help: "Target port",
		Default: constants.DEFAULT_PORT})
	noComp := args.Flag("z", "no-compression", &argparse.Options{Help: "Never flag files as compressed"})

	err := args.Parse(os.Args)

	if err != nil {
		fmt.Print(args.Usage(err))
		os.Exit(1)
	}

	// Walk every top-level path into one pre-ordered entry list.
	listing := new(fileio.FileListing)
	for _, path := range *paths {
		if err := listing.Add(path); err != nil {
			fmt.Println(err.Error())
			os.Exit(1)
		}
	}

	entries := listing.Finalize()
	if len(entries) == 0 {
		fmt.Println("No files to send")
		os.Exit(1)
	}
	fmt.Println("Number of entries to send:", len(entries))

	if *noComp || !comms.CompressionEnabled() {
		fmt.Println("Compression is disabled")
	} else {
		fmt.Println("Compression is enabled (set " + constants.ENV_DISABLE_COMPRESSION + " to change it)")
	}

	addr := *bind + ":" + strconv.Itoa(*port)

	dial := new(net.Dialer)
	// Set MPTCP.
	dial.SetMultipathTCP(*mptcp)

	conn, err := dial.Dial("tcp", addr)
	if err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}

	// Set TCP_NODELAY to always immediately send.
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	// Set DSCP. NOTE: On Windows by default it will not apply the value.
	ipv4.NewConn(conn).SetTOS(*dscp)

	fmt.Println("Connected to", addr)

	sender, err := comms.NewConnection(conn, entries, *noComp)
	if err != nil {
		fmt.Println(err.Error())
		conn.Close()
		os.Exit(1)
	}
	defer sender.Close()

	sender.Start()

	for sender.Alive() {
		sender.Update()
	}

	if !sender.Finished() {
		os.Exit(2)
	}
	fmt.Println("All entries pushed")
}
