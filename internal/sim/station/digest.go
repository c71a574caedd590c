package station

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"

	"stationscience.dev/internal/sim/vessel"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func (s *Station) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	digestWriteU64(h, &tmp, uint64(s.cfg.Seed))
	digestWriteF64(h, &tmp, s.clock)
	digestWriteU64(h, &tmp, s.offerCycle)

	s.digestProgression(h, &tmp)
	s.digestContracts(h, &tmp)
	s.digestFleet(h, &tmp)

	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func digestWriteString(h hashWriter, tmp *[8]byte, v string) {
	digestWriteU64(h, tmp, uint64(len(v)))
	h.Write([]byte(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func (s *Station) digestProgression(h hashWriter, tmp *[8]byte) {
	p := s.prog
	digestWriteF64(h, tmp, p.XP)
	digestWriteF64(h, tmp, p.Reputation)
	digestWriteF64(h, tmp, p.Funds)
	digestWriteF64(h, tmp, p.Science)
	h.Write([]byte{boolByte(p.OrbitedHome)})
	for _, name := range p.UnlockedList() {
		digestWriteString(h, tmp, name)
	}
	for _, body := range p.ReachedList() {
		digestWriteString(h, tmp, body)
	}
}

// Contracts are hashed through their saved records, so anything that
// survives a save is covered.
func (s *Station) digestContracts(h hashWriter, tmp *[8]byte) {
	for _, rec := range s.book.Records() {
		keys := make([]string, 0, len(rec))
		for k := range rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			digestWriteString(h, tmp, k)
			digestWriteString(h, tmp, rec[k])
		}
	}
}

func (s *Station) digestFleet(h hashWriter, tmp *[8]byte) {
	for _, v := range s.fleet.All() {
		digestWriteString(h, tmp, v.ID)
		digestWriteString(h, tmp, v.Body)
		digestWriteString(h, tmp, string(v.Situation))
		digestWriteF64(h, tmp, v.Altitude)
		for _, part := range v.Parts {
			digestWriteString(h, tmp, part)
		}
		for _, p := range v.Payloads {
			digestWriteString(h, tmp, p.PartID)
			digestWriteString(h, tmp, p.TypeID)
			digestWriteF64(h, tmp, p.LaunchedAt)
			digestWriteF64(h, tmp, p.CompletedAt)
			digestWriteString(h, tmp, p.LastSubjectID)
			for _, r := range vessel.Resources {
				digestWriteF64(h, tmp, p.Amount(r))
				digestWriteF64(h, tmp, p.Capacity(r))
				h.Write([]byte{boolByte(p.Running(r))})
			}
			for _, d := range p.Data {
				digestWriteString(h, tmp, d)
			}
			h.Write([]byte{boolByte(p.Inoperable)})
		}
	}
}
