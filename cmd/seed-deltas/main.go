// Command seed-deltas generates a synthetic catalog and a stream of
// availability deltas against a running service, then reports what the
// search path observes. Useful for smoke-testing a local instance.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Default configuration constants.
const (
	defaultNumEvents     = 200
	defaultDeltasPer     = 50
	defaultWorkersPerCPU = 2
	defaultTimeout       = 10 * time.Second
	defaultRunTimeout    = 5 * time.Minute
)

var (
	categories = []string{"music", "sports", "theater", "comedy"}
	cities     = []string{"Austin", "Dallas", "Houston", "San Antonio", "El Paso"}
	artists    = []string{"The Frequencies", "Dawn Chorus", "Velvet Parade", "Iron Harbor", "Glass Anthem"}
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:9080", "Base URL of the service")
		numEvents = flag.Int("events", defaultNumEvents, "Number of events to create")
		deltasPer = flag.Int("deltas", defaultDeltasPer, "Number of deltas per event")
		workers   = flag.Int("workers", runtime.NumCPU()*defaultWorkersPerCPU, "Number of concurrent delta submitters")
		timeout   = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	client := &http.Client{Timeout: *timeout}

	ids, err := seedEvents(ctx, client, *baseURL, *numEvents)
	if err != nil {
		os.Stderr.WriteString("seeding events failed: " + err.Error() + "\n")
		os.Exit(1)
	}
	fmt.Printf("created %d events\n", len(ids))

	if err := pumpDeltas(ctx, client, *baseURL, ids, *deltasPer, *workers); err != nil {
		os.Stderr.WriteString("submitting deltas failed: " + err.Error() + "\n")
		os.Exit(1)
	}
	fmt.Printf("submitted %d deltas\n", len(ids)*(*deltasPer))

	if err := report(ctx, client, *baseURL); err != nil {
		os.Stderr.WriteString("report failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func seedEvents(ctx context.Context, client *http.Client, baseURL string, n int) ([]string, error) {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := uuid.NewString()
		total := 50 + rand.Intn(450)
		body := map[string]any{
			"id":       id,
			"title":    fmt.Sprintf("%s Night %d", artists[i%len(artists)], i),
			"artist":   artists[i%len(artists)],
			"category": categories[i%len(categories)],
			"venue": map[string]any{
				"name": "Venue " + cities[i%len(cities)],
				"city": cities[i%len(cities)],
				"lat":  25.0 + rand.Float64()*10,
				"lon":  -105.0 + rand.Float64()*10,
			},
			"date":       time.Now().AddDate(0, 1+i%6, 0).Format(time.RFC3339),
			"price_min":  20 + rand.Float64()*80,
			"price_max":  120 + rand.Float64()*380,
			"total":      total,
			"available":  total,
			"popularity": rand.Float64(),
		}
		if err := post(ctx, client, baseURL+"/events", body, http.StatusCreated); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func pumpDeltas(ctx context.Context, client *http.Client, baseURL string, ids []string, deltasPer, workers int) error {
	jobs := make(chan string, len(ids))
	for _, id := range ids {
		jobs <- id
	}
	close(jobs)

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				for v := 2; v <= deltasPer+1; v++ {
					body := map[string]any{
						"event_id":   id,
						"kind":       "decrement",
						"seats":      1 + rand.Intn(3),
						"version":    v,
						"emitted_at": time.Now().Format(time.RFC3339Nano),
					}
					if err := post(ctx, client, baseURL+"/deltas", body, http.StatusAccepted); err != nil {
						select {
						case errCh <- err:
						default:
						}
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func report(ctx context.Context, client *http.Client, baseURL string) error {
	// Give the synchronizer a moment to drain.
	time.Sleep(2 * time.Second)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/stats", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var stats map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return err
	}
	fmt.Printf("state=%v queue_depth=%v cache_hit_rate=%v catalog_events=%v\n",
		stats["state"], stats["queue_depth"], stats["cache_hit_rate"], stats["catalog_events"])
	return nil
}

func post(ctx context.Context, client *http.Client, url string, body any, want int) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		return fmt.Errorf("%s: unexpected status %d", url, resp.StatusCode)
	}
	return nil
}
