// Command mocksource emulates the external data source for local pipeline
// development: a directory-index listing of flat files, a JSON dataset
// endpoint, and webhook endpoints with success/slow/fail behavior.
package main

import (
	"encoding/json"
	"fmt"
	"html"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

var requestCount atomic.Int64

func main() {
	port := "9090"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}
	dataDir := "testdata/source"
	if d := os.Getenv("DATA_DIR"); d != "" {
		dataDir = d
	}

	// Directory index, the HTML listing the fetcher scrapes
	http.HandleFunc("/pub/time.series/pr/", func(w http.ResponseWriter, r *http.Request) {
		requestCount.Add(1)

		name := filepath.Base(r.URL.Path)
		if name != "pr" && name != "." {
			// A file under the listing
			http.ServeFile(w, r, filepath.Join(dataDir, name))
			return
		}

		entries, err := os.ReadDir(dataDir)
		if err != nil {
			http.Error(w, "data directory unavailable", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><h1>Index of /pub/time.series/pr/</h1><pre>\n")
		fmt.Fprint(w, `<a href="../">../</a>`+"\n")
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			n := html.EscapeString(e.Name())
			fmt.Fprintf(w, `<a href="%s">%s</a>`+"\n", n, n)
		}
		fmt.Fprint(w, "</pre></body></html>")
	})

	// JSON dataset endpoint
	http.HandleFunc("/api/population", func(w http.ResponseWriter, r *http.Request) {
		requestCount.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"Nation": "United States", "Year": "2023", "Population": 332387540},
				{"Nation": "United States", "Year": "2022", "Population": 331097593},
				{"Nation": "United States", "Year": "2021", "Population": 329725481},
			},
			"source": "mock",
		})
	})

	// Webhook endpoints for exercising delivery behavior
	http.HandleFunc("/webhook/success", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		logRequest(r, count, 200)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "received"})
	})

	http.HandleFunc("/webhook/slow", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		time.Sleep(3 * time.Second)
		logRequest(r, count, 200)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "received (slow)"})
	})

	http.HandleFunc("/webhook/fail", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		logRequest(r, count, 500)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
	})

	http.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{"total_requests": requestCount.Load()})
	})

	log.Printf("Mock source server starting on :%s (data dir %s)", port, dataDir)
	log.Printf("  GET  /pub/time.series/pr/  -> directory index")
	log.Printf("  GET  /api/population       -> JSON dataset")
	log.Printf("  POST /webhook/success      -> 200 OK")
	log.Printf("  POST /webhook/slow         -> 200 OK (3s delay)")
	log.Printf("  POST /webhook/fail         -> 500 Error")
	log.Printf("  GET  /stats                -> request count")

	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func logRequest(r *http.Request, count int64, status int) {
	fmt.Printf("[#%d] %s %s -> %d | sig=%s id=%s attempt=%s\n",
		count,
		r.Method,
		r.URL.Path,
		status,
		truncate(r.Header.Get("X-Event-Signature"), 16),
		r.Header.Get("X-Event-ID"),
		r.Header.Get("X-Event-Attempt"),
	)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
