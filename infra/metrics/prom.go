package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evbridge/voc2mqtt/core/vehicle"
)

// PromSink publishes the vehicle gauges on a Prometheus registry.
type PromSink struct {
	gauges map[string]*prometheus.GaugeVec
}

// NewPromSink registers the vehicle gauges on the provided registerer.
// If reg is nil, the default registerer is used. Already-registered
// collectors are reused.
func NewPromSink(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{gauges: make(map[string]*prometheus.GaugeVec)}
	for _, spec := range exported {
		g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: spec.name,
			Help: spec.help,
		}, []string{"vin", "registration"})
		if err := reg.Register(g); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				g = are.ExistingCollector.(*prometheus.GaugeVec)
			} else {
				return nil, err
			}
		}
		s.gauges[spec.name] = g
	}
	return s, nil
}

// RecordVehicleState updates the gauges from the live attribute trees.
func (s *PromSink) RecordVehicleState(vehicles []*vehicle.Vehicle) error {
	for _, v := range vehicles {
		vin := v.VIN()
		reg := v.RegistrationNumber()
		for _, spec := range exported {
			val, ok := numericAttr(v, spec.attr)
			if !ok {
				continue
			}
			s.gauges[spec.name].WithLabelValues(vin, reg).Set(val)
		}
	}
	return nil
}

// StartPromServer starts an HTTP server exposing Prometheus metrics on
// the given address. The server runs until the provided context is
// canceled. A dedicated ServeMux is used to avoid interfering with
// other handlers.
func StartPromServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("prom server shutdown: %v", err)
		}
		cancel()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
