// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package live streams measurements to browsers over websockets.
//
// A Hub is an acquire.Reporter: every measurement is encoded once as JSON
// and forwarded to all connected clients. Clients that fall behind lose
// messages rather than slowing the node down.
package live

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	logger "github.com/d2r2/go-logger"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/GermanBionicSystems/co2node/acquire"
)

var lg = logger.NewPackageLogger("live", logger.InfoLevel)

// ErrStopped is returned by Report once the hub's Run has returned.
var ErrStopped = errors.New("live: hub stopped")

const (
	socketBufferSize  = 1024
	messageBufferSize = 10
)

// Message is the JSON document sent for each measurement.
type Message struct {
	Time                time.Time `json:"time"`
	CO2                 uint16    `json:"co2_ppm"`
	Temperature         int16     `json:"temperature_c"`
	Humidity            uint8     `json:"humidity_rh"`
	Pressure            uint32    `json:"pressure_pa"`
	PressureTemperature float64   `json:"pressure_temperature_c"`
}

// NewMessage converts m.
func NewMessage(m acquire.Measurement) Message {
	return Message{
		Time:                m.Time,
		CO2:                 uint16(m.CO2.CO2),
		Temperature:         m.CO2.Temperature,
		Humidity:            m.CO2.Humidity,
		Pressure:            m.Pressure.Pressure,
		PressureTemperature: m.Pressure.Temperature,
	}
}

// Hub owns the set of connected clients. All changes to the set happen in
// the goroutine running Run.
type Hub struct {
	// forward holds encoded messages for all clients.
	forward chan []byte
	// join is a channel for clients wishing to join.
	join chan *client
	// leave is a channel for clients wishing to leave.
	leave chan *client
	// clients holds all current clients.
	clients map[*client]bool
	// done is closed when Run returns.
	done chan struct{}

	upgrader websocket.Upgrader
	count    atomic.Int32
}

// NewHub makes a new hub that is ready to go once Run is started.
func NewHub() *Hub {
	return &Hub{
		forward:  make(chan []byte),
		join:     make(chan *client),
		leave:    make(chan *client),
		clients:  make(map[*client]bool),
		done:     make(chan struct{}),
		upgrader: websocket.Upgrader{ReadBufferSize: socketBufferSize, WriteBufferSize: socketBufferSize},
	}
}

// Run serves joins, leaves and broadcasts until ctx is done, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case c := <-h.join:
			h.clients[c] = true
			h.count.Store(int32(len(h.clients)))
			lg.Infof("client %s joined", c)
		case c := <-h.leave:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			h.count.Store(int32(len(h.clients)))
			lg.Infof("client %s left", c)
		case msg := <-h.forward:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					lg.Debugf("client %s is behind, message dropped", c)
				}
			}
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.count.Store(0)
			return ctx.Err()
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// Report implements acquire.Reporter.
func (h *Hub) Report(ctx context.Context, m acquire.Measurement) error {
	b, err := json.Marshal(NewMessage(m))
	if err != nil {
		return errors.Wrap(err, "live: encode")
	}
	select {
	case h.forward <- b:
		return nil
	case <-h.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ServeHTTP upgrades the request to a websocket and serves it until either
// side goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	socket, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		lg.Warningf("upgrade %s: %v", req.RemoteAddr, err)
		return
	}
	c := &client{
		socket: socket,
		send:   make(chan []byte, messageBufferSize),
	}
	select {
	case h.join <- c:
	case <-h.done:
		_ = socket.Close()
		return
	}
	defer func() {
		select {
		case h.leave <- c:
		case <-h.done:
		}
	}()
	go c.write()
	c.read()
}

var _ acquire.Reporter = &Hub{}
var _ http.Handler = &Hub{}
