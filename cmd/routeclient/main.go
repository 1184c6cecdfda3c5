package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"terrainroute/internal/pathfinding"
	"terrainroute/internal/route"
	"terrainroute/internal/terrain"
)

type routeRequest struct {
	Start      terrain.Cell `json:"start"`
	Goal       terrain.Cell `json:"goal"`
	MaskRadius *float64     `json:"maskRadius,omitempty"`
	TimeoutMs  *int64       `json:"timeoutMs,omitempty"`
	Spacing    *float64     `json:"spacing,omitempty"`
}

type routeReply struct {
	Seq   int `json:"seq"`
	Route *struct {
		ID        string                 `json:"id"`
		Status    pathfinding.Status     `json:"status"`
		Cost      float64                `json:"cost"`
		Expanded  int                    `json:"expanded"`
		Reopened  int                    `json:"reopened"`
		Waypoints []pathfinding.Waypoint `json:"waypoints"`
		Points    []route.Point          `json:"points"`
	} `json:"route"`
	Error string `json:"error"`
}

func main() {
	server := flag.String("server", "127.0.0.1:28090", "route server address")
	fromRow := flag.Int("fromrow", 0, "start row")
	fromCol := flag.Int("fromcol", 0, "start column")
	toRow := flag.Int("torow", 0, "goal row")
	toCol := flag.Int("tocol", 0, "goal column")
	radius := flag.Float64("radius", 0, "mask radius (0 uses server default)")
	timeout := flag.Duration("timeout", 0, "search timeout (0 uses server default)")
	spacing := flag.Float64("spacing", 0, "resample spacing for evenly spaced points (0 disables)")
	asYAML := flag.Bool("yaml", false, "print the route as a YAML document")
	flag.Parse()

	req := routeRequest{
		Start: terrain.Cell{Row: *fromRow, Col: *fromCol},
		Goal:  terrain.Cell{Row: *toRow, Col: *toCol},
	}
	if *radius > 0 {
		req.MaskRadius = radius
	}
	if *timeout > 0 {
		ms := timeout.Milliseconds()
		req.TimeoutMs = &ms
	}
	if *spacing > 0 {
		req.Spacing = spacing
	}

	target := url.URL{Scheme: "ws", Host: *server, Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(target.String(), nil)
	if err != nil {
		log.Fatalf("dial %s: %v", target.String(), err)
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(3 * time.Second))
	if err := conn.WriteJSON(req); err != nil {
		log.Fatalf("send: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	var reply routeReply
	if err := conn.ReadJSON(&reply); err != nil {
		log.Fatalf("recv: %v", err)
	}
	if reply.Error != "" {
		log.Fatalf("server: %s", reply.Error)
	}
	if reply.Route == nil {
		log.Fatalf("server sent an empty reply")
	}
	resp := reply.Route

	if *asYAML {
		doc := route.NewDocument(pathfinding.Route{Status: resp.Status, Cost: resp.Cost, Waypoints: resp.Waypoints})
		doc.Points = resp.Points
		if err := route.EncodeYAML(os.Stdout, doc); err != nil {
			log.Fatalf("encode: %v", err)
		}
		return
	}

	fmt.Printf("Route %s: %s, cost %.3f, %d expanded, %d reopened\n", resp.ID, resp.Status, resp.Cost, resp.Expanded, resp.Reopened)
	for i, step := range resp.Waypoints {
		fmt.Printf(" %d: (%d,%d) h=%.3f\n", i, step.Row, step.Col, step.Height)
	}
	if len(resp.Points) > 0 {
		data, _ := json.Marshal(resp.Points)
		fmt.Printf("Points: %s\n", data)
	}
}
