// cmd/server is the main entrypoint for a DHT job-routing node.
//
// Configuration is entirely via flags/environment so a single binary can
// serve any position in the ring.
//
// Example — bootstrap node:
//
//	./server --dht_address :9000 --api_address :8080
//
// Example — joining node:
//
//	./server --dht_address :9001 --api_address :8081 \
//	         --bootstrap_node localhost:9000
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"distributed-kvstore/internal/api"
	"distributed-kvstore/internal/idspace"
	"distributed-kvstore/internal/job"
	"distributed-kvstore/internal/kv"
	"distributed-kvstore/internal/objectstore"
	"distributed-kvstore/internal/ring"
	"distributed-kvstore/internal/rpc"
	"distributed-kvstore/internal/store"
)

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	// ── Flags ──────────────────────────────────────────────────────────────
	dhtAddress := flag.String("dht_address", ":9000", "Address this node's DHT RPC server listens on")
	apiAddress := flag.String("api_address", ":8080", "Address this node's HTTP facade listens on")
	bootstrapNode := flag.String("bootstrap_node", "", "Address of an existing ring member to join through; empty starts a new ring")
	minioURL := flag.String("minio_url", "", "Object storage endpoint (overrides MINIO_URL)")
	dataDir := flag.String("data-dir", "/tmp/dht-node", "Directory for WAL and snapshots")
	m := flag.Int("m", 16, "Identifier space bit-width")
	replicas := flag.Int("replicas", kv.DefaultReplicationCount, "Number of replica nodes each key is written to, beyond its primary")
	flag.Parse()

	minioEndpoint := *minioURL
	if minioEndpoint == "" {
		minioEndpoint = envOrDefault("MINIO_URL", "")
	}
	_ = envOrDefault("MINIO_ACCESS_KEY", "")
	_ = envOrDefault("MINIO_SECRET_KEY", "")
	defaultSecret, _ := idspace.New(*m).ID([]byte(*dhtAddress))
	secret := envOrDefault("SEC_KEY", defaultSecret)
	hostname := envOrDefault("HOSTNAME", *dhtAddress)

	// ── Storage ────────────────────────────────────────────────────────────
	nodeDataDir := fmt.Sprintf("%s/%s", *dataDir, sanitize(hostname))
	st, err := store.New(nodeDataDir, secret)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	objDir := fmt.Sprintf("%s/objects", nodeDataDir)
	objStore, err := objectstore.NewLocal(objDir)
	if err != nil {
		log.Fatalf("open object store: %v", err)
	}
	if minioEndpoint != "" {
		log.Printf("minio_url %s configured but unused: no MinIO SDK in the dependency pack this node was built against; falling back to local object storage at %s", minioEndpoint, objDir)
	}

	// ── Ring ───────────────────────────────────────────────────────────────
	space := idspace.New(*m)
	hexID, numeric := space.ID([]byte(*dhtAddress))
	self := ring.NodeRecord{Addr: *dhtAddress, ID: hexID, Numeric: numeric}

	rpcServer, err := rpc.NewServer(*dhtAddress)
	if err != nil {
		log.Fatalf("open rpc listener: %v", err)
	}
	rpcClient := rpc.NewClient()

	node := ring.New(self, space, st, rpcClient)
	k := kv.New(node, st, rpcClient, *replicas)
	node.RegisterHandlers(rpcServer)
	k.RegisterHandlers(rpcServer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rpcShutdown := make(chan struct{})
	go func() {
		if err := rpcServer.Serve(rpcShutdown); err != nil {
			log.Printf("rpc server stopped: %v", err)
		}
	}()

	if err := node.Join(ctx, *bootstrapNode); err != nil {
		log.Fatalf("join ring via %q: %v", *bootstrapNode, err)
	}
	log.Printf("node %s (id=%s) joined ring, bootstrap=%q", self.Addr, self.ID, *bootstrapNode)

	node.RunMaintenance(ctx)

	registry := job.NewRegistry()
	worker := job.NewWorker(node, k, registry)
	go worker.Run(ctx)

	_ = objStore // reserved for task handlers wired through job.Registry

	// ── HTTP facade ────────────────────────────────────────────────────────
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(api.Logger(), api.Recovery())

	handler := api.NewHandler(node, k, space)
	handler.Register(router)

	srv := &http.Server{
		Addr:         *apiAddress,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("node %s: api listening on %s, dht listening on %s", self.Addr, *apiAddress, *dhtAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	// Background snapshot every 60 seconds.
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := st.Snapshot(); err != nil {
					log.Printf("snapshot error: %v", err)
				}
			}
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down node", self.Addr)
	cancel()
	close(rpcShutdown)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := st.Snapshot(); err != nil {
		log.Printf("final snapshot error: %v", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("api server shutdown error: %v", err)
	}
	if err := rpcServer.Close(); err != nil {
		log.Printf("rpc server close error: %v", err)
	}
}

// sanitize turns a listen address like ":9000" or "0.0.0.0:9000" into a
// filesystem-safe directory component.
func sanitize(addr string) string {
	out := make([]byte, 0, len(addr))
	for i := 0; i < len(addr); i++ {
		c := addr[i]
		if c == ':' || c == '/' || c == '\\' {
			out = append(out, '_')
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return "node"
	}
	return string(out)
}
