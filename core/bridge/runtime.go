package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/evbridge/voc2mqtt/core/bus"
	"github.com/evbridge/voc2mqtt/core/instrument"
	"github.com/evbridge/voc2mqtt/core/logger"
	"github.com/evbridge/voc2mqtt/core/vehicle"
)

// Source is the vehicle-state collaborator the runtime polls.
type Source interface {
	// Update refreshes the attribute trees of all account vehicles.
	Update(ctx context.Context) error

	// Vehicles lists the vehicles currently known to the account.
	Vehicles() []*vehicle.Vehicle
}

// StateSink receives each successful poll, e.g. for metrics export.
type StateSink interface {
	RecordVehicleState(vehicles []*vehicle.Vehicle) error
}

// Runtime runs the poll-and-publish loop and routes inbound commands.
// The bus listener and the poll loop run concurrently; the entity and
// routing tables are shared between them and guarded by mu.
type Runtime struct {
	bus  bus.Bus
	src  Source
	cfg  Config
	sink StateSink
	log  logger.Logger

	mu        sync.Mutex
	entities  map[string][]*Entity
	routes    map[string]*Entity
	connected bool
	announced map[*Entity]bool
}

// NewRuntime wires the runtime to the bus and registers its handlers.
func NewRuntime(b bus.Bus, src Source, cfg Config, sink StateSink, log logger.Logger) *Runtime {
	cfg.SetDefaults()
	if log == nil {
		log = logger.Nop{}
	}
	rt := &Runtime{
		bus:       b,
		src:       src,
		cfg:       cfg,
		sink:      sink,
		log:       log,
		entities:  make(map[string][]*Entity),
		routes:    make(map[string]*Entity),
		announced: make(map[*Entity]bool),
	}
	b.SetMessageHandler(rt.route)
	b.SetConnectHandler(rt.onConnect)
	b.SetDisconnectHandler(rt.onDisconnect)
	return rt
}

// Run polls at the configured interval until the context is cancelled.
// One poll is in flight at a time.
func (rt *Runtime) Run(ctx context.Context) error {
	interval := time.Duration(rt.cfg.PollIntervalSeconds) * time.Second
	rt.log.Infof("polling vehicle state every %s", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	rt.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rt.cycle(ctx)
		}
	}
}

// cycle updates vehicle state and publishes availability and state for
// every entity. A failure on one entity never blocks the rest, and a
// refresh failure on one vehicle only takes that vehicle offline.
func (rt *Runtime) cycle(ctx context.Context) {
	polled := true
	if err := rt.src.Update(ctx); err != nil {
		rt.log.Errorf("vehicle poll: %v", err)
		polled = false
	}

	vehicles := rt.src.Vehicles()
	for _, v := range vehicles {
		fresh := polled && v.Available()
		for _, e := range rt.entitiesFor(v) {
			rt.publishAvailability(e, fresh)
			if fresh {
				rt.publishState(e)
			}
		}
	}

	if rt.sink != nil && polled {
		if err := rt.sink.RecordVehicleState(vehicles); err != nil {
			rt.log.Errorf("state sink: %v", err)
		}
	}
}

// entitiesFor returns the entity set for a vehicle, building dashboard
// and entities on first sight and announcing them immediately.
func (rt *Runtime) entitiesFor(v *vehicle.Vehicle) []*Entity {
	id := v.UniqueID()
	rt.mu.Lock()
	ents, ok := rt.entities[id]
	rt.mu.Unlock()
	if ok {
		return ents
	}

	rt.log.Infof("creating entities for vehicle %s", v)
	icfg := rt.cfg.Instrument
	icfg.Logger = rt.log
	dash := instrument.NewDashboard(v, icfg)
	for _, inst := range dash.Instruments {
		ents = append(ents, NewEntity(inst, rt.cfg, rt.log))
	}

	rt.mu.Lock()
	rt.entities[id] = ents
	for _, e := range ents {
		if e.IsMutable() {
			rt.routes[e.CommandTopic()] = e
		}
	}
	rt.mu.Unlock()

	rt.announce(ents)
	return ents
}

// announce subscribes command topics and publishes retained discovery
// for every entity not yet announced on the current broker session. An
// entity counts as announced only once its discovery actually reached
// the bus; entities built while disconnected are retried on the next
// connect. Position entities stay off the discovery and availability
// channels.
func (rt *Runtime) announce(ents []*Entity) {
	for _, e := range ents {
		if e.IsPosition() {
			continue
		}
		rt.mu.Lock()
		done := rt.announced[e]
		rt.mu.Unlock()
		if done {
			continue
		}
		if e.IsMutable() {
			if err := rt.bus.Subscribe(e.CommandTopic()); err != nil {
				rt.log.Errorf("subscribe %s: %v", e.CommandTopic(), err)
				continue
			}
		}
		payload, err := e.DiscoveryPayload()
		if err != nil {
			rt.log.Errorf("discovery for %s: %v", e.Name(), err)
			continue
		}
		if !rt.publish(e.DiscoveryTopic(), payload, true) {
			continue
		}
		rt.mu.Lock()
		rt.announced[e] = true
		rt.mu.Unlock()
	}
}

func (rt *Runtime) publishAvailability(e *Entity, available bool) {
	if e.IsPosition() {
		return
	}
	rt.publish(e.AvailabilityTopic(), e.AvailabilityPayload(available), false)
}

func (rt *Runtime) publishState(e *Entity) {
	payload, ok, err := e.StatePayload()
	if err != nil {
		rt.log.Errorf("state for %s: %v", e.Name(), err)
		return
	}
	if !ok {
		rt.log.Debugf("no state available for %s", e.Name())
		return
	}
	rt.publish(e.StateTopic(), payload, false)
}

// publish sends to the bus unless the connection is down. Polling keeps
// going while disconnected; only publishing is blocked. Reports whether
// the payload actually went out.
func (rt *Runtime) publish(topic string, payload []byte, retain bool) bool {
	rt.mu.Lock()
	connected := rt.connected
	rt.mu.Unlock()
	if !connected {
		rt.log.Debugf("not connected, dropping publish on %s", topic)
		return false
	}
	rt.log.Debugw("publishing", map[string]any{"topic": topic, "payload": string(payload)})
	if err := rt.bus.Publish(topic, payload, retain); err != nil {
		rt.log.Errorf("publish %s: %v", topic, err)
		return false
	}
	return true
}

// onConnect reopens publishing. A fresh broker session lost its retained
// discovery and server-side subscriptions, so every entity is announced
// again; a resumed session keeps them, and only entities whose announce
// never made it out get another attempt.
func (rt *Runtime) onConnect(resumed bool) {
	rt.mu.Lock()
	rt.connected = true
	if !resumed {
		rt.announced = make(map[*Entity]bool)
	}
	var all []*Entity
	for _, ents := range rt.entities {
		all = append(all, ents...)
	}
	rt.mu.Unlock()

	rt.log.Infof("bus connected (resumed=%t), %d entities known", resumed, len(all))
	rt.announce(all)
}

func (rt *Runtime) onDisconnect(err error) {
	rt.mu.Lock()
	rt.connected = false
	rt.mu.Unlock()
	rt.log.Warnf("bus disconnected: %v", err)
}

// route resolves an inbound message to exactly one entity by exact
// topic match. Unmatched topics are logged and dropped.
func (rt *Runtime) route(topic string, payload []byte) {
	rt.mu.Lock()
	e := rt.routes[topic]
	rt.mu.Unlock()
	if e == nil {
		rt.log.Warnf("no subscriber for message on topic %s", topic)
		return
	}
	go e.HandleCommand(context.Background(), payload)
}
