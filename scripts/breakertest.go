// breakertest is a tool to verify circuit breaker behavior end to end by
// driving traffic through a running gateway while the upstream is stopped
// and restarted by hand.
//
// Usage:
//
//	go run breakertest.go -gateway http://localhost:8080 -upstream orders
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
)

type breakerStatus struct {
	State    string `json:"state"`
	Failures int    `json:"failures"`
	Healthy  bool   `json:"healthy"`
}

func main() {
	var (
		gatewayURL = flag.String("gateway", "http://localhost:8080", "Gateway URL")
		upstream   = flag.String("upstream", "orders", "Upstream name to exercise")
		requests   = flag.Int("requests", 10, "Requests per phase")
	)
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}
	stdin := bufio.NewReader(os.Stdin)

	fmt.Println(colorBlue + "━━━ PHASE 1: Normal Operation ━━━" + colorReset)
	sendRequests(client, *gatewayURL, *upstream, *requests)
	printState(client, *gatewayURL, *upstream)

	fmt.Println()
	fmt.Println(colorBlue + "━━━ PHASE 2: Trip the Breaker ━━━" + colorReset)
	fmt.Printf("Stop the %q upstream now, then press Enter...\n", *upstream)
	_, _ = stdin.ReadString('\n')

	sendRequests(client, *gatewayURL, *upstream, *requests)
	state := printState(client, *gatewayURL, *upstream)
	if state == "OPEN" {
		fmt.Println(colorGreen + "✓ breaker tripped open" + colorReset)
	} else {
		fmt.Println(colorRed + "✗ breaker did not open; raise -requests above the failure threshold" + colorReset)
	}

	fmt.Println()
	fmt.Println(colorBlue + "━━━ PHASE 3: Recovery ━━━" + colorReset)
	fmt.Printf("Restart the %q upstream, wait out the reset timeout, then press Enter...\n", *upstream)
	_, _ = stdin.ReadString('\n')

	sendRequests(client, *gatewayURL, *upstream, *requests)
	state = printState(client, *gatewayURL, *upstream)
	if state == "CLOSED" {
		fmt.Println(colorGreen + "✓ breaker recovered" + colorReset)
	} else {
		fmt.Println(colorRed + "✗ breaker still " + state + colorReset)
	}
}

func sendRequests(client *http.Client, gatewayURL, upstream string, n int) {
	for i := 0; i < n; i++ {
		resp, err := client.Get(gatewayURL + "/" + upstream + "/health")
		if err != nil {
			fmt.Printf("%s[%2d] transport error: %v%s\n", colorRed, i+1, err, colorReset)
			continue
		}
		resp.Body.Close()

		color := colorGreen
		if resp.StatusCode >= 500 {
			color = colorRed
		}
		fmt.Printf("%s[%2d] %d%s", color, i+1, resp.StatusCode, colorReset)
		if retry := resp.Header.Get("Retry-After"); retry != "" {
			fmt.Printf("  %sretry-after=%ss%s", colorYellow, retry, colorReset)
		}
		fmt.Println()
	}
}

func printState(client *http.Client, gatewayURL, upstream string) string {
	resp, err := client.Get(gatewayURL + "/breakers")
	if err != nil {
		fmt.Println(colorRed+"failed to read /breakers:"+colorReset, err)
		return ""
	}
	defer resp.Body.Close()

	var statuses map[string]breakerStatus
	if err := json.NewDecoder(resp.Body).Decode(&statuses); err != nil {
		fmt.Println(colorRed+"failed to decode /breakers:"+colorReset, err)
		return ""
	}

	status := statuses[upstream]
	fmt.Printf("breaker %q: state=%s failures=%d healthy=%t\n",
		upstream, status.State, status.Failures, status.Healthy)
	return status.State
}
