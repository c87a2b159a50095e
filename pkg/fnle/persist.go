package fnle

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	fileLineV4   = "line.bin"
	fileLineV6   = "line6.bin"
	fileWhereV4  = "where.bin"
	fileWhereV6  = "where6.bin"
	fileObjV4    = "objects.json"
	fileObjV6    = "objects6.json"
	fileDirect   = "direct.json"
	fileOverlap4 = "overlapping.bin"
	fileOverlap6 = "overlapping6.bin"
	fileVersion  = "tsCreated.json"
)

type versionStamp struct {
	LutVersion int64 `json:"lutVersion"`
}

// NewVersionStamp returns timestamp_ms + random[0,100), matching the
// source system's tail-randomness so concurrent persisters land on
// distinct stamps without coordination across worker processes.
func NewVersionStamp() int64 {
	return time.Now().UnixMilli() + int64(rand.Intn(100))
}

// Persist writes a complete snapshot of the sealed index to dir. dir
// is created if it does not exist.
func (ix *Index[P]) Persist(dir string) error {
	if !ix.v4.sealed || !ix.v6.sealed {
		return fmt.Errorf("fnle: cannot persist an unbuilt index")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fnle: mkdir %s: %w", dir, err)
	}

	if err := writeLine(filepath.Join(dir, fileLineV4), ix.v4.line, true); err != nil {
		return err
	}
	if err := writeLine(filepath.Join(dir, fileLineV6), ix.v6.line, false); err != nil {
		return err
	}
	if err := writeWhere(filepath.Join(dir, fileWhereV4), ix.v4.where); err != nil {
		return err
	}
	if err := writeWhere(filepath.Join(dir, fileWhereV6), ix.v6.where); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, fileObjV4), ix.v4.payloads); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, fileObjV6), ix.v6.payloads); err != nil {
		return err
	}
	if err := writeDirect(filepath.Join(dir, fileDirect), ix.v4, ix.v6); err != nil {
		return err
	}
	if err := writeOverlap(filepath.Join(dir, fileOverlap4), ix.v4.overlaps); err != nil {
		return err
	}
	if err := writeOverlap(filepath.Join(dir, fileOverlap6), ix.v6.overlaps); err != nil {
		return err
	}

	stamp := versionStamp{LutVersion: NewVersionStamp()}
	return writeJSON(filepath.Join(dir, fileVersion), stamp)
}

func writeLine(path string, line []event, isV4 bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("fnle: create %s: %w", path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, ev := range line {
		if isV4 {
			var buf [11]byte
			buf[0] = byte(ev.kind) & 0x3
			binary.LittleEndian.PutUint32(buf[1:5], uint32(ev.coord.Lo))
			put3(buf[5:8], ev.slot)
			put3(buf[8:11], ev.mate)
			if _, err := w.Write(buf[:]); err != nil {
				return err
			}
		} else {
			var buf [23]byte
			buf[0] = byte(ev.kind) & 0x3
			binary.LittleEndian.PutUint64(buf[1:9], ev.coord.Hi)
			binary.LittleEndian.PutUint64(buf[9:17], ev.coord.Lo)
			put3(buf[17:20], ev.slot)
			put3(buf[20:23], ev.mate)
			if _, err := w.Write(buf[:]); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

func put3(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

func get3(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

func writeWhere(path string, where []uint32) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("fnle: create %s: %w", path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	var buf [4]byte
	for _, v := range where {
		binary.LittleEndian.PutUint32(buf[:], v)
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("fnle: marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("fnle: write %s: %w", path, err)
	}
	return nil
}

func writeDirect[P any](path string, v4, v6 *family[P]) error {
	out := make(map[string]any, len(v4.direct)+len(v6.direct))
	for addr, entry := range v4.direct {
		key := strconv.FormatUint(uint64(uint32(addr.Lo)), 10)
		out[key] = directJSON(entry)
	}
	for addr, entry := range v6.direct {
		key := fnleToAddr(addr, false).String()
		out[key] = directJSON(entry)
	}
	return writeJSON(path, out)
}

func directJSON[P any](entry directEntry[P]) any {
	if entry.isMany {
		return entry.multi
	}
	return entry.single
}

func writeOverlap(path string, overlaps [][]uint32) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("fnle: create %s: %w", path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	var buf [4]byte
	for key, neighbours := range overlaps {
		if len(neighbours) == 0 {
			continue
		}
		binary.LittleEndian.PutUint32(buf[:], uint32(key))
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(buf[:], uint32(len(neighbours)))
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
		for _, nb := range neighbours {
			binary.LittleEndian.PutUint32(buf[:], nb)
			if _, err := w.Write(buf[:]); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

// Load reads a snapshot from dir. If version equals the index's
// current in-memory version (only meaningful for an index that was
// already loaded/built once) it returns LoadReloadNotNeeded without
// re-reading files.
func Load[P any](name string, policy Policy, dir string, currentVersion int64) (*Index[P], int64, LoadResult, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, 0, LoadStoreDirDoesNotExist, ErrStoreMissing
	}

	var stamp versionStamp
	if data, err := os.ReadFile(filepath.Join(dir, fileVersion)); err == nil {
		_ = json.Unmarshal(data, &stamp)
	}
	if currentVersion != 0 && stamp.LutVersion == currentVersion {
		return nil, currentVersion, LoadReloadNotNeeded, nil
	}

	ix := &Index[P]{Name: name, Policy: policy, v4: newFamily[P](true), v6: newFamily[P](false)}

	v4Line, err := readLine(filepath.Join(dir, fileLineV4), true)
	if err != nil {
		return nil, 0, 0, err
	}
	v6Line, err := readLine(filepath.Join(dir, fileLineV6), false)
	if err != nil {
		return nil, 0, 0, err
	}
	ix.v4.line = v4Line
	ix.v6.line = v6Line
	ix.v4.afterEvent = computeAfterEvent(v4Line)
	ix.v6.afterEvent = computeAfterEvent(v6Line)

	nv4 := len(v4Line) / 2
	nv6 := len(v6Line) / 2

	ix.v4.where, err = readWhere(filepath.Join(dir, fileWhereV4), nv4)
	if err != nil {
		return nil, 0, 0, err
	}
	ix.v6.where, err = readWhere(filepath.Join(dir, fileWhereV6), nv6)
	if err != nil {
		return nil, 0, 0, err
	}

	if err := readJSON(filepath.Join(dir, fileObjV4), &ix.v4.payloads); err != nil {
		return nil, 0, 0, err
	}
	if err := readJSON(filepath.Join(dir, fileObjV6), &ix.v6.payloads); err != nil {
		return nil, 0, 0, err
	}

	// Reconstruct ranges from the sweep line + where, since the raw
	// add()-time bookkeeping is not persisted.
	ix.v4.ranges = reconstructRanges(v4Line, nv4)
	ix.v6.ranges = reconstructRanges(v6Line, nv6)

	ix.v4.overlaps, err = readOverlap(filepath.Join(dir, fileOverlap4), nv4)
	if err != nil {
		return nil, 0, 0, err
	}
	ix.v6.overlaps, err = readOverlap(filepath.Join(dir, fileOverlap6), nv6)
	if err != nil {
		return nil, 0, 0, err
	}
	sanitizeOverlaps(ix.v4.overlaps, nv4)
	sanitizeOverlaps(ix.v6.overlaps, nv6)

	if err := readDirect[P](filepath.Join(dir, fileDirect), ix.v4, ix.v6); err != nil {
		return nil, 0, 0, err
	}

	ix.v4.sealed = true
	ix.v6.sealed = true

	return ix, stamp.LutVersion, LoadSuccess, nil
}

// computeAfterEvent replays the line's start/end events to rebuild the
// gap-lookup snapshot, mirroring the bookkeeping family.build does at
// build time; a loaded index never calls build, so it needs its own pass.
func computeAfterEvent(line []event) []int64 {
	after := make([]int64, len(line))
	open := make(map[uint32]struct{})
	for idx, ev := range line {
		if ev.kind == KindStart {
			open[ev.slot] = struct{}{}
		} else {
			delete(open, ev.slot)
		}
		after[idx] = minOpenSlot(open)
	}
	return after
}

func reconstructRanges(line []event, n int) []Range {
	ranges := make([]Range, n)
	for _, ev := range line {
		if ev.kind == KindStart {
			ranges[ev.slot].Start = ev.coord
		} else {
			ranges[ev.slot].End = ev.coord
		}
	}
	return ranges
}

func readLine(path string, isV4 bool) ([]event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fnle: read %s: %w", path, err)
	}
	recSize := 11
	if !isV4 {
		recSize = 23
	}
	if len(data)%recSize != 0 {
		return nil, fmt.Errorf("fnle: %s has truncated record (%d bytes, record size %d)", path, len(data), recSize)
	}
	n := len(data) / recSize
	line := make([]event, n)
	for i := 0; i < n; i++ {
		rec := data[i*recSize : (i+1)*recSize]
		var ev event
		ev.kind = Kind(rec[0] & 0x3)
		if isV4 {
			ev.coord = AddrFromV4(binary.LittleEndian.Uint32(rec[1:5]))
			ev.slot = get3(rec[5:8])
			ev.mate = get3(rec[8:11])
		} else {
			hi := binary.LittleEndian.Uint64(rec[1:9])
			lo := binary.LittleEndian.Uint64(rec[9:17])
			ev.coord = AddrFromV6(hi, lo)
			ev.slot = get3(rec[17:20])
			ev.mate = get3(rec[20:23])
		}
		line[i] = ev
	}
	return line, nil
}

func readWhere(path string, n int) ([]uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make([]uint32, n), nil
		}
		return nil, fmt.Errorf("fnle: read %s: %w", path, err)
	}
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[i*4 : i*4+4])
	}
	return out, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("fnle: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("fnle: unmarshal %s: %w", path, err)
	}
	return nil
}

func readOverlap(path string, n int) ([][]uint32, error) {
	out := make([][]uint32, n)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("fnle: read %s: %w", path, err)
	}
	pos := 0
	for pos < len(data) {
		if pos+8 > len(data) {
			break // truncated trailer, tolerate rather than fail the load
		}
		key := binary.LittleEndian.Uint32(data[pos : pos+4])
		count := binary.LittleEndian.Uint32(data[pos+4 : pos+8])
		pos += 8
		neighbours := make([]uint32, 0, count)
		for i := uint32(0); i < count && pos+4 <= len(data); i++ {
			neighbours = append(neighbours, binary.LittleEndian.Uint32(data[pos:pos+4]))
			pos += 4
		}
		if int(key) < len(out) {
			out[key] = neighbours
		}
	}
	return out, nil
}

// sanitizeOverlaps drops neighbour entries (and whole keys) that refer
// to a slot outside the currently-loaded range array.
func sanitizeOverlaps(overlaps [][]uint32, n int) {
	for slot, neighbours := range overlaps {
		if slot >= n {
			overlaps[slot] = nil
			continue
		}
		filtered := neighbours[:0]
		for _, nb := range neighbours {
			if int(nb) < n {
				filtered = append(filtered, nb)
			}
		}
		overlaps[slot] = filtered
	}
}

func readDirect[P any](path string, v4, v6 *family[P]) error {
	raw := make(map[string]json.RawMessage)
	if err := readJSON(path, &raw); err != nil {
		return err
	}
	for key, msg := range raw {
		var multi []P
		if err := json.Unmarshal(msg, &multi); err == nil && looksLikeArray(msg) {
			assignDirect(key, v4, v6, directEntry[P]{multi: multi, isMany: true})
			continue
		}
		var single P
		if err := json.Unmarshal(msg, &single); err != nil {
			return fmt.Errorf("fnle: unmarshal direct entry %q: %w", key, err)
		}
		assignDirect(key, v4, v6, directEntry[P]{single: single})
	}
	return nil
}

func looksLikeArray(msg json.RawMessage) bool {
	for _, b := range msg {
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		return b == '['
	}
	return false
}

func assignDirect[P any](key string, v4, v6 *family[P], entry directEntry[P]) {
	if n, err := strconv.ParseUint(key, 10, 32); err == nil {
		v4.direct[AddrFromV4(uint32(n))] = entry
		return
	}
	if addr, err := netip.ParseAddr(key); err == nil {
		v6.direct[addrToFNLE(addr)] = entry
	}
}
