package controller

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// Server accepts sender connections and materializes their pushes
// beneath the receive root
type Server struct {
	root string
}

// StartListening binds the listening socket and serves connections
// until the process ends. One goroutine drives each connection;
// connections share nothing but the receive root.
func (s *Server) StartListening(root, addr string, mptcp bool) {
	s.root = filepath.Clean(root)

	info, err := os.Stat(s.root)
	if err != nil || !info.IsDir() {
		fmt.Println("Invalid receive root -", s.root)
		os.Exit(1)
	}

	lc := new(net.ListenConfig)
	// Set MPTCP.
	lc.SetMultipathTCP(mptcp)

	l, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		fmt.Println("Could not bind listening socket on " + addr)
		os.Exit(1)
	}

	// Close the listener when the application closes.
	defer l.Close()

	fmt.Println("Listening on " + addr)

	for {
		conn, err := l.Accept()
		if err != nil {
			fmt.Println("Failed to establish incoming connection")
			continue
		}

		// Set TCP_NODELAY to always immediately send.
		if tcp, ok := conn.(*net.TCPConn); ok {
			tcp.SetNoDelay(true)
		}

		fmt.Println("New connection from: " + conn.RemoteAddr().String())

		go s.serve(conn)
	}
}

func (s *Server) serve(socket net.Conn) {
	peer := socket.RemoteAddr().String()

	connection, err := NewConnection(socket, peer, s.root)
	if err != nil {
		fmt.Println(peer + ": failed to initialize connection")
		socket.Close()
		return
	}
	defer connection.Close()

	for connection.Alive() {
		connection.Update()
	}
}
