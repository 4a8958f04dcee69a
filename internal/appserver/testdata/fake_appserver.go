package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Fake application server for subprocess tests. Accepts the spawn shape used
// by the manager: -S host:port -t docroot [router]. Behavior is selected via
// FAKE_APPSERVER_MODE:
//
//	""        serve: 200 on /__volttest_health, 404 elsewhere
//	exit      exit(1) immediately without listening
//	hang      stay alive without ever listening
//	stubborn  serve, but ignore SIGTERM
func main() {
	var addr, docroot string
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-S":
			if i+1 < len(args) {
				addr = args[i+1]
				i++
			}
		case "-t":
			if i+1 < len(args) {
				docroot = args[i+1]
				i++
			}
		}
	}
	fmt.Printf("fake appserver args=%v addr=%s docroot=%s\n", os.Args[1:], addr, docroot)

	switch os.Getenv("FAKE_APPSERVER_MODE") {
	case "exit":
		fmt.Println("fake appserver exiting early")
		os.Exit(1)
	case "hang":
		// Block on a signal channel rather than select{} so the runtime's
		// deadlock detector does not kill the process.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh
		os.Exit(0)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/__volttest_health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Wait for SIGTERM then shutdown. Stubborn mode ignores SIGTERM and only
	// dies from SIGKILL.
	sigCh := make(chan os.Signal, 1)
	if os.Getenv("FAKE_APPSERVER_MODE") == "stubborn" {
		signal.Ignore(syscall.SIGTERM)
	} else {
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	}
	<-sigCh
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
