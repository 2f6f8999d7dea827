// Package http serves info, prometheus metrics and a small JSON API for the loaded entry.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"dev.hon.one/pfbridge/common"
	"dev.hon.one/pfbridge/entity"
	"dev.hon.one/pfbridge/host"
	"dev.hon.one/pfbridge/integration"
	"dev.hon.one/pfbridge/tracker"
	"dev.hon.one/pfbridge/util"
)

// Runner - The entry owner the API reads from and sends reloads to.
type Runner interface {
	Current() *integration.Loaded
	Entry() integration.Entry
	RequestReload(entityIDs []string)
}

// Server - HTTP handlers over one runner and its host.
type Server struct {
	runner Runner
	host   *host.Host
}

// NewServer - Create the handlers.
func NewServer(runner Runner, host *host.Host) *Server {
	return &Server{runner: runner, host: host}
}

// Router - Routes of the server.
func (server *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/", server.handleIndex).Methods(http.MethodGet)
	router.HandleFunc("/metrics", server.handleMetrics).Methods(http.MethodGet)
	router.HandleFunc("/api/entities", server.handleListEntities).Methods(http.MethodGet)
	router.HandleFunc("/api/entities/{entity_id}", server.handleGetEntity).Methods(http.MethodGet)
	router.HandleFunc("/api/devices/remove", server.handleRemoveDevices).Methods(http.MethodPost)
	router.HandleFunc("/api/reload", server.handleReload).Methods(http.MethodPost)
	router.NotFoundHandler = http.HandlerFunc(handleNotFound)
	return router
}

// StartServer - Start HTTP server in the background.
func StartServer(waitGroup *sync.WaitGroup, shutdown *util.ShutdownChannelDistributor, endpoint string, server *Server) {
	shutdownChannel := make(chan bool, 1)
	if !shutdown.AddListener(shutdownChannel) {
		return
	}
	waitGroup.Add(1)

	// Configure
	httpServer := &http.Server{
		Addr:              endpoint,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Run
	shutdownDone := make(chan bool, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP server failed")
		}
		shutdownDone <- true
		log.Info("HTTP server stopped")
		waitGroup.Done()
	}()

	// Shutdown
	go func() {
		select {
		case <-shutdownChannel:
			shutdownContext, shutdownContextCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownContextCancel()
			httpServer.Shutdown(shutdownContext)
		case <-shutdownDone:
		}
	}()

	log.Infof("HTTP server started: %v", endpoint)
}

func handleNotFound(response http.ResponseWriter, request *http.Request) {
	http.Error(response, "404 - Page not found.\n", http.StatusNotFound)
}

func (server *Server) handleIndex(response http.ResponseWriter, request *http.Request) {
	fmt.Fprintf(response, "%s version %s by %s.\n", common.AppName, common.AppVersion, common.AppAuthor)
	fmt.Fprintf(response, "\nEntry: %s\n", server.runner.Entry().ID)
	fmt.Fprintf(response, "\nPaths:\n")
	fmt.Fprintf(response, "- Metrics: /metrics\n")
	fmt.Fprintf(response, "- Entities: GET /api/entities\n")
	fmt.Fprintf(response, "- Remove devices: POST /api/devices/remove\n")
	fmt.Fprintf(response, "- Reload: POST /api/reload\n")
}

// EntityView - API representation of a loaded entity.
type EntityView struct {
	EntityID   string                 `json:"entity_id"`
	UniqueID   string                 `json:"unique_id"`
	Platform   string                 `json:"platform"`
	Name       string                 `json:"name"`
	State      string                 `json:"state"`
	Available  bool                   `json:"available"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

func newEntityView(loaded host.LoadedEntity) EntityView {
	return EntityView{
		EntityID:   loaded.EntityID,
		UniqueID:   loaded.Entity.UniqueID(),
		Platform:   loaded.Entity.Platform(),
		Name:       loaded.Entity.Name(),
		State:      entity.StateString(loaded.Entity),
		Available:  loaded.Entity.Available(),
		Attributes: loaded.Entity.Attributes(),
	}
}

// loadedEntities - Entities of all platforms of the current entry, sorted by entity ID.
func (server *Server) loadedEntities() []host.LoadedEntity {
	current := server.runner.Current()
	if current == nil {
		return nil
	}
	var entities []host.LoadedEntity
	for _, platform := range current.Platforms {
		entities = append(entities, platform.Entities()...)
	}
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].EntityID < entities[j].EntityID
	})
	return entities
}

func writeJSON(response http.ResponseWriter, status int, value interface{}) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)
	if err := json.NewEncoder(response).Encode(value); err != nil {
		log.WithError(err).Debug("Failed to write response")
	}
}

func writeError(response http.ResponseWriter, status int, message string) {
	writeJSON(response, status, map[string]string{"error": message})
}

func (server *Server) handleListEntities(response http.ResponseWriter, request *http.Request) {
	if server.runner.Current() == nil {
		writeError(response, http.StatusServiceUnavailable, "entry not loaded")
		return
	}
	views := make([]EntityView, 0)
	for _, loaded := range server.loadedEntities() {
		views = append(views, newEntityView(loaded))
	}
	writeJSON(response, http.StatusOK, views)
}

func (server *Server) handleGetEntity(response http.ResponseWriter, request *http.Request) {
	entityID := mux.Vars(request)["entity_id"]
	for _, loaded := range server.loadedEntities() {
		if loaded.EntityID == entityID {
			writeJSON(response, http.StatusOK, newEntityView(loaded))
			return
		}
	}
	writeError(response, http.StatusNotFound, "entity not found")
}

func (server *Server) handleRemoveDevices(response http.ResponseWriter, request *http.Request) {
	var body map[string]interface{}
	if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
		writeError(response, http.StatusBadRequest, "invalid JSON body")
		return
	}
	macs := tracker.MACsFromEvent(body)
	if len(macs) == 0 {
		writeError(response, http.StatusBadRequest, "no MAC addresses given")
		return
	}
	entryID := server.runner.Entry().ID
	log.WithFields(log.Fields{
		"entry":  entryID,
		"macs":   macs,
		"client": request.RemoteAddr,
	}).Info("Device removal requested")
	server.host.Bus.Fire(tracker.RemoveDevicesTopic(entryID), map[string]interface{}{"macs": macs})
	writeJSON(response, http.StatusOK, map[string]interface{}{"removed": macs})
}

func (server *Server) handleReload(response http.ResponseWriter, request *http.Request) {
	log.WithField("client", request.RemoteAddr).Info("Reload requested")
	server.runner.RequestReload(nil)
	writeJSON(response, http.StatusAccepted, map[string]string{"status": "reloading"})
}

func (server *Server) handleMetrics(response http.ResponseWriter, request *http.Request) {
	log.WithFields(log.Fields{
		"endpoint": "metrics",
		"client":   request.RemoteAddr,
		"url":      request.URL,
	}).Trace("Request")

	// Build registry with data
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	util.NewExporterMetric(registry, common.PrometheusNamespace, common.AppVersion)
	server.registerMetrics(registry)

	// Delegare final handling to Prometheus
	promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP(response, request)
}

func (server *Server) registerMetrics(registry *prometheus.Registry) {
	namespace := common.PrometheusNamespace
	entryLabels := prometheus.Labels{"entry": server.runner.Entry().ID}

	loadedMetric := util.NewGauge(registry, namespace, "entry", "loaded", "If the entry is loaded.", entryLabels)
	current := server.runner.Current()
	if current == nil {
		return
	}
	loadedMetric.Set(1)

	coordinatorLabels := prometheus.Labels{"coordinator": ""}
	successMetric := util.NewGaugeVec(registry, namespace, "coordinator", "last_update_success", "If the last update of the coordinator succeeded.", entryLabels, util.MapKeys(coordinatorLabels))
	durationMetric := util.NewGaugeVec(registry, namespace, "coordinator", "last_update_duration_seconds", "Duration of the last update of the coordinator.", entryLabels, util.MapKeys(coordinatorLabels))
	for _, source := range current.Coordinators() {
		labels := util.MergeLabels(coordinatorLabels, prometheus.Labels{"coordinator": source.Name()})
		successMetric.With(labels).Set(boolToFloat(source.LastUpdateSuccess()))
		if result := source.LastResult(); result != nil {
			durationMetric.With(labels).Set(result.Duration.Seconds())
		}
	}

	entityLabels := prometheus.Labels{"entity_id": "", "platform": ""}
	stateMetric := util.NewGaugeVec(registry, namespace, "entity", "state", "Numeric state of the entity.", entryLabels, util.MapKeys(entityLabels))
	availableMetric := util.NewGaugeVec(registry, namespace, "entity", "available", "If the entity is available.", entryLabels, util.MapKeys(entityLabels))
	connectedMetric := util.NewGaugeVec(registry, namespace, "device_tracker", "connected", "If the tracked device is connected.", entryLabels, []string{"entity_id", "mac_address"})
	for _, loaded := range server.loadedEntities() {
		labels := prometheus.Labels{"entity_id": loaded.EntityID, "platform": loaded.Entity.Platform()}
		availableMetric.With(labels).Set(boolToFloat(loaded.Entity.Available()))
		if scanner, ok := loaded.Entity.(*tracker.ScannerEntity); ok {
			connectedMetric.With(prometheus.Labels{"entity_id": loaded.EntityID, "mac_address": scanner.MACAddress()}).Set(boolToFloat(scanner.IsConnected()))
			continue
		}
		if value, ok := numericState(loaded.Entity.State()); ok && loaded.Entity.Available() {
			stateMetric.With(labels).Set(value)
		}
	}
}

// numericState - The state as a gauge value, with on/off as 1/0.
func numericState(state interface{}) (float64, bool) {
	switch state {
	case "on":
		return 1, true
	case "off":
		return 0, true
	}
	return util.ToFloat(state)
}

func boolToFloat(value bool) float64 {
	if value {
		return 1
	}
	return 0
}
