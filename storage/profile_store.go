package storage

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/colorfulnotion/bpvm/bytecode"
	"github.com/colorfulnotion/bpvm/jit"
	"github.com/colorfulnotion/bpvm/log"
	"golang.org/x/exp/slices"
)

const fingerprintLen = 32

// ProfileRecord is the stored form of one function's JIT profile.
type ProfileRecord struct {
	Function  string `json:"function"`
	Calls     uint64 `json:"calls"`
	State     string `json:"state"`
	CompileNs int64  `json:"compile_ns"`
}

// StoredProfile is a record together with the module it belongs to.
type StoredProfile struct {
	Module string `json:"module"` // hex fingerprint
	ProfileRecord
}

// ProfileStore keeps JIT profiles across runs, keyed by
// module fingerprint || function name.
type ProfileStore struct {
	ps *PersistenceStore
}

// OpenProfileStore opens the database at path, or an in-memory one when path
// is empty.
func OpenProfileStore(path string) (*ProfileStore, error) {
	ps, err := NewPersistenceStore(path)
	if err != nil {
		return nil, err
	}
	return &ProfileStore{ps: ps}, nil
}

func (s *ProfileStore) Close() error { return s.ps.Close() }

func profileKey(fp [32]byte, name string) []byte {
	k := make([]byte, 0, fingerprintLen+len(name))
	k = append(k, fp[:]...)
	return append(k, name...)
}

// Save writes the profile of every function the engine has seen. Compile
// times accumulate on top of what is already stored; call counts are
// replaced.
func (s *ProfileStore) Save(e *jit.Engine, m *bytecode.Module) (int, error) {
	fp := m.Fingerprint()
	prof := e.Profiler()
	var pairs [][2][]byte
	for _, idx := range prof.Functions() {
		if int(idx) >= len(m.Functions) {
			continue
		}
		name := m.Functions[idx].Name
		pr := prof.Profile(idx)
		rec := ProfileRecord{
			Function:  name,
			Calls:     pr.Calls,
			State:     pr.State.String(),
			CompileNs: e.CompileTime[idx].Nanoseconds(),
		}
		key := profileKey(fp, name)
		if old, ok, err := s.get(key); err != nil {
			return 0, err
		} else if ok {
			rec.CompileNs += old.CompileNs
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return 0, err
		}
		pairs = append(pairs, [2][]byte{key, data})
	}
	if err := s.ps.PutBatch(pairs); err != nil {
		return 0, fmt.Errorf("saving %d profiles: %w", len(pairs), err)
	}
	log.Debug(log.ProfileModule, "saved profiles", "module", hex.EncodeToString(fp[:8]), "functions", len(pairs))
	return len(pairs), nil
}

func (s *ProfileStore) get(key []byte) (ProfileRecord, bool, error) {
	var rec ProfileRecord
	data, ok, err := s.ps.Get(key)
	if err != nil || !ok {
		return rec, ok, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, false, fmt.Errorf("profile %q: %w", key[fingerprintLen:], err)
	}
	return rec, true, nil
}

// Load returns the stored records of m by function name.
func (s *ProfileStore) Load(m *bytecode.Module) (map[string]ProfileRecord, error) {
	fp := m.Fingerprint()
	pairs, err := s.ps.GetWithPrefix(fp[:])
	if err != nil {
		return nil, err
	}
	out := make(map[string]ProfileRecord, len(pairs))
	for _, kv := range pairs {
		var rec ProfileRecord
		if err := json.Unmarshal(kv[1], &rec); err != nil {
			return nil, fmt.Errorf("profile %q: %w", kv[0][fingerprintLen:], err)
		}
		out[string(kv[0][fingerprintLen:])] = rec
	}
	return out, nil
}

// List returns every stored record, ordered by module then function.
func (s *ProfileStore) List() ([]StoredProfile, error) {
	pairs, err := s.ps.GetWithPrefix(nil)
	if err != nil {
		return nil, err
	}
	out := make([]StoredProfile, 0, len(pairs))
	for _, kv := range pairs {
		if len(kv[0]) < fingerprintLen {
			continue
		}
		var sp StoredProfile
		if err := json.Unmarshal(kv[1], &sp.ProfileRecord); err != nil {
			return nil, fmt.Errorf("profile %x: %w", kv[0], err)
		}
		sp.Module = hex.EncodeToString(kv[0][:fingerprintLen])
		out = append(out, sp)
	}
	slices.SortStableFunc(out, func(a, b StoredProfile) int {
		if a.Module != b.Module {
			if a.Module < b.Module {
				return -1
			}
			return 1
		}
		if a.Function < b.Function {
			return -1
		}
		if a.Function > b.Function {
			return 1
		}
		return 0
	})
	return out, nil
}

// Warm seeds the engine's profiler with stored call counts, so functions
// that were hot last time compile on their first call. Functions whose
// compilation failed are left cold.
func (s *ProfileStore) Warm(e *jit.Engine, m *bytecode.Module) (int, error) {
	recs, err := s.Load(m)
	if err != nil {
		return 0, err
	}
	n := 0
	for name, rec := range recs {
		if st, ok := jit.ParseState(rec.State); ok && st == jit.Failed {
			continue
		}
		idx := m.FunctionIndex(name)
		if idx < 0 {
			continue
		}
		e.Profiler().Seed(uint32(idx), rec.Calls)
		n++
	}
	log.Debug(log.ProfileModule, "warmed profiler", "functions", n)
	return n, nil
}
