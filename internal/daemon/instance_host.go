package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/photon-run/photond/internal/config"
	"github.com/photon-run/photond/internal/envstore"
	"github.com/photon-run/photond/internal/photon"
)

// Dependencies are the handles the Instance Host may inject into a
// photon's constructor per the classification table of §4.4:
// external-service dependencies and other photons' client proxies.
type Dependencies struct {
	ExternalServices map[string]any
	PhotonProxies    map[string]any
}

var primitiveParamTypes = map[string]bool{
	"string": true, "number": true, "boolean": true, "int": true, "float": true,
}

// hostedGeneration bundles one live instance with the serialization
// queue implementing its implicit whole-instance lock domain (§4.5)
// and the debounced state writer backing it (§4.4).
type hostedGeneration struct {
	gen        photon.Generation
	descriptor *photon.Descriptor
	instance   photon.Instance
	serialize  *SerializeQueue
	emitter    *instanceEmitter

	mu        sync.Mutex
	writeTimer *time.Timer
	dirty      bool
}

// InstanceHost owns the photon's current generation, constructs new
// ones on load/reload, and snapshots stateful instances to disk on a
// debounced schedule (§4.4).
type InstanceHost struct {
	photonName string
	paths      *config.Paths
	envStore   *envstore.Store
	deps       Dependencies
	extractor  photon.Extractor
	logger     *slog.Logger
	debounce   time.Duration
	bus        *ChannelBus
	gens       photon.GenerationCounter

	mu      sync.RWMutex
	current *hostedGeneration
}

func NewInstanceHost(photonName string, paths *config.Paths, envStore *envstore.Store, deps Dependencies, extractor photon.Extractor, bus *ChannelBus, debounce time.Duration, logger *slog.Logger) *InstanceHost {
	return &InstanceHost{
		photonName: photonName,
		paths:      paths,
		envStore:   envStore,
		deps:       deps,
		extractor:  extractor,
		bus:        bus,
		debounce:   debounce,
		logger:     logger,
	}
}

// emitterFor returns the Emitter bound to the generation identified
// by gen, or a no-op Emitter if that generation is no longer current
// (a reload happened between dispatch and execution).
func (h *InstanceHost) emitterFor(gen photon.Generation) photon.Emitter {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.current != nil && h.current.gen == gen {
		return h.current.emitter
	}
	return noopEmitter{}
}

type noopEmitter struct{}

func (noopEmitter) Emit(channel string, message any) int { return 0 }

// Current returns the active generation's instance and descriptor.
func (h *InstanceHost) Current() (photon.Instance, *photon.Descriptor, *SerializeQueue, photon.Generation) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.current == nil {
		return nil, nil, nil, 0
	}
	return h.current.instance, h.current.descriptor, h.current.serialize, h.current.gen
}

// Load performs the initial construction (§4.1: failure here is
// fatal to daemon startup).
func (h *InstanceHost) Load(ctx context.Context, sourcePath string) error {
	gen, err := h.build(ctx, sourcePath)
	if err != nil {
		return fmt.Errorf("construct initial instance: %w", err)
	}
	h.mu.Lock()
	h.current = gen
	h.mu.Unlock()
	return nil
}

// Reload implements §4.4's hot-reload contract: construct on a new
// generation; on success, swap the pointer and retire the old
// instance's onShutdown hook; on failure, the old generation remains
// active and the error is returned to the caller (the reload response
// reports it, nothing else changes).
func (h *InstanceHost) Reload(ctx context.Context, sourcePath string) error {
	newGen, err := h.build(ctx, sourcePath)
	if err != nil {
		return err
	}

	h.mu.Lock()
	old := h.current
	h.current = newGen
	h.mu.Unlock()

	if old != nil {
		old.serialize.Close() // lets in-flight calls against the old generation finish, then stops accepting more
		if hook, ok := old.instance.(photon.ShutdownHook); ok {
			hook.OnShutdown(ctx)
		}
	}
	return nil
}

func (h *InstanceHost) build(ctx context.Context, sourcePath string) (*hostedGeneration, error) {
	descriptor, constructor, err := h.extractor.Extract(ctx, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", sourcePath, err)
	}

	args, err := h.classifyArgs(descriptor)
	if err != nil {
		return nil, err
	}

	instance, err := constructor(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("construct instance: %w", err)
	}

	gen := h.gens.Next()
	handle := fmt.Sprintf("%s:%d", h.photonName, gen)

	hg := &hostedGeneration{
		gen:        gen,
		descriptor: descriptor,
		instance:   instance,
		serialize:  NewSerializeQueue(),
		emitter:    newInstanceEmitter(h.bus, handle),
	}

	if descriptor.Stateful {
		if err := h.hydrateState(descriptor, instance); err != nil {
			h.logger.Warn("state hydration failed, starting from defaults", "photon", h.photonName, "error", err)
		}
	}

	return hg, nil
}

// classifyArgs resolves constructor parameters per the table in
// §4.4.
func (h *InstanceHost) classifyArgs(descriptor *photon.Descriptor) (map[string]any, error) {
	args := make(map[string]any, len(descriptor.ConstructorParams))

	for _, param := range descriptor.ConstructorParams {
		if svc, ok := h.deps.ExternalServices[param.Name]; ok {
			args[param.Name] = svc
			continue
		}
		if proxy, ok := h.deps.PhotonProxies[param.Name]; ok {
			args[param.Name] = proxy
			continue
		}
		if !primitiveParamTypes[param.Type] && param.Default != nil && descriptor.Stateful {
			args[param.Name] = param.Default // overwritten by hydrateState once the instance exists
			continue
		}
		if primitiveParamTypes[param.Type] && param.Default == nil {
			if v, ok := h.envStore.Resolve(param.Name); ok {
				args[param.Name] = v
				continue
			}
			return nil, fmt.Errorf("classify constructor param %q: no default, and no value in env store or process environment", param.Name)
		}
		if param.Default != nil {
			args[param.Name] = param.Default
			continue
		}
		return nil, fmt.Errorf("classify constructor param %q: unresolvable (not a dependency, photon proxy, stateful default, or env value)", param.Name)
	}
	return args, nil
}

func (h *InstanceHost) statePath(descriptor *photon.Descriptor) (string, error) {
	dir, err := h.paths.StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, descriptor.Name+".json"), nil
}

func (h *InstanceHost) hydrateState(descriptor *photon.Descriptor, instance photon.Instance) error {
	path, err := h.statePath(descriptor)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	restorable, ok := instance.(interface{ RestoreState(map[string]any) error })
	if !ok {
		return nil
	}
	var snapshot map[string]any
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("parse persisted state: %w", err)
	}
	return restorable.RestoreState(snapshot)
}

// NoteStateChange schedules a debounced snapshot write for the
// generation's current instance, if it is a StateProvider. Called by
// the Method Runner after every successful method invocation; an
// instance that is not a StateProvider is left alone.
func (h *InstanceHost) NoteStateChange(gen *hostedGeneration, descriptor *photon.Descriptor) {
	provider, ok := gen.instance.(photon.StateProvider)
	if !ok {
		return
	}

	gen.mu.Lock()
	defer gen.mu.Unlock()
	gen.dirty = true
	if gen.writeTimer != nil {
		return // already scheduled
	}
	gen.writeTimer = time.AfterFunc(h.debounce, func() {
		gen.mu.Lock()
		gen.writeTimer = nil
		dirty := gen.dirty
		gen.dirty = false
		gen.mu.Unlock()
		if !dirty {
			return
		}
		h.flush(descriptor, provider)
	})
}

func (h *InstanceHost) flush(descriptor *photon.Descriptor, provider photon.StateProvider) {
	snapshot := provider.StateSnapshot()
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		h.logger.Warn("state snapshot marshal failed", "photon", h.photonName, "error", err)
		return
	}
	path, err := h.statePath(descriptor)
	if err != nil {
		h.logger.Warn("state path resolution failed", "photon", h.photonName, "error", err)
		return
	}
	if err := config.EnsureDir(filepath.Dir(path), 0700); err != nil {
		h.logger.Warn("state dir create failed", "photon", h.photonName, "error", err)
		return
	}
	if err := config.AtomicWriteFile(path, data, 0600); err != nil {
		h.logger.Warn("state snapshot write failed", "photon", h.photonName, "error", err)
	}
}
