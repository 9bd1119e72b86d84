package archive

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/bft-labs/tcarchive/pkg/frame"
	"github.com/bft-labs/tcarchive/pkg/storage"
	"github.com/bft-labs/tcarchive/pkg/telecommand"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return epoch.Add(time.Duration(sec) * time.Second)
}

func cmd(sec int, scheduled bool, payload ...byte) telecommand.Record {
	return telecommand.Record{
		Primary: telecommand.PrimaryHeader{APID: uint16(sec), SequenceCount: uint16(sec)},
		Secondary: telecommand.SecondaryHeader{
			MajorVersion:     1,
			PacketIdentifier: 0x11,
			Generated:        epoch,
		},
		Scheduled: scheduled,
		Timestamp: at(sec),
		Payload:   payload,
	}
}

func frameLen(t *testing.T, rec telecommand.Record) int64 {
	t.Helper()
	b, err := rec.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	return int64(frame.EncodedLen(b))
}

// noRename hides the Renamer of the wrapped file system.
type noRename struct {
	storage.FileSystem
}

type recorder struct {
	appends  []int
	faults   []FaultKind
	compacts []CompactResult
}

func (r *recorder) OnAppend(n int)                   { r.appends = append(r.appends, n) }
func (r *recorder) OnFault(kind FaultKind, _ string) { r.faults = append(r.faults, kind) }
func (r *recorder) OnCompact(res CompactResult)      { r.compacts = append(r.compacts, res) }

func newArchive(t *testing.T, fsys storage.FileSystem, now time.Time, opts ...Option) *Archive {
	t.Helper()
	opts = append([]Option{WithClock(ClockFunc(func() time.Time { return now }))}, opts...)
	a, err := New(fsys, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func writeAll(t *testing.T, a *Archive, recs ...telecommand.Record) {
	t.Helper()
	for _, rec := range recs {
		if err := a.Write(rec); err != nil {
			t.Fatalf("Write(%v): %v", rec.Timestamp, err)
		}
	}
}

func timestamps(recs []telecommand.Record) []time.Time {
	out := make([]time.Time, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Timestamp)
	}
	return out
}

func exists(t *testing.T, fsys storage.FileSystem, name string) bool {
	t.Helper()
	ok, err := fsys.Exists(name)
	if err != nil {
		t.Fatalf("Exists(%s): %v", name, err)
	}
	return ok
}

func TestNew_Validation(t *testing.T) {
	mem := storage.NewMemory()
	tests := []struct {
		name string
		fsys storage.FileSystem
		opts []Option
		want error
	}{
		{"empty name", mem, []Option{WithNames("", "updt_db")}, ErrInvalidName},
		{"long name", mem, []Option{WithNames("telecommands", "updt_db")}, ErrInvalidName},
		{"long staging", mem, []Option{WithNames("tlcmd_db", "staging_db")}, ErrInvalidName},
		{"same names", mem, []Option{WithNames("tlcmd_db", "tlcmd_db")}, ErrInvalidName},
		{"buffer too small", mem, []Option{WithMaxRecordLen(telecommand.MinLen - 1)}, ErrBufferTooSmall},
		{"buffer too large", mem, []Option{WithMaxRecordLen(telecommand.MaxLen + 1)}, ErrInvalidConfig},
		{"swap without rename", noRename{mem}, []Option{WithStrategy(StrategySwap)}, ErrInvalidConfig},
		{"unknown strategy", mem, []Option{WithStrategy(Strategy(9))}, ErrInvalidConfig},
		{"nil file system", nil, nil, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.fsys, tt.opts...)
			if !errors.Is(err, tt.want) {
				t.Fatalf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNew_StrategyAuto(t *testing.T) {
	mem := storage.NewMemory()
	if got := newArchive(t, mem, epoch).Strategy(); got != StrategySwap {
		t.Errorf("strategy on renaming fs = %v, want swap", got)
	}
	if got := newArchive(t, noRename{mem}, epoch).Strategy(); got != StrategyReplay {
		t.Errorf("strategy on plain fs = %v, want replay", got)
	}
}

func TestArchive_RecordsInAppendOrder(t *testing.T) {
	a := newArchive(t, storage.NewMemory(), epoch)
	want := []telecommand.Record{
		cmd(3, true, 0xC0, 0xDB, 0xDC),
		cmd(1, false),
		cmd(2, true, []byte("reboot")...),
		cmd(1, true, 0xC0),
	}
	writeAll(t, a, want...)

	got, err := a.Records()
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Records() =\n%+v\nwant\n%+v", got, want)
	}
}

func TestArchive_ReadFirstDue(t *testing.T) {
	a := newArchive(t, storage.NewMemory(), at(25))
	writeAll(t, a, cmd(10, true), cmd(20, true), cmd(30, true))

	a.BeginReading()
	defer a.EndReading()

	rec, ok, err := a.Read()
	if err != nil || !ok {
		t.Fatalf("Read() = %v, %v", ok, err)
	}
	if !rec.Timestamp.Equal(at(10)) {
		t.Fatalf("Read() timestamp = %v, want %v", rec.Timestamp, at(10))
	}

	// the scan continues from where it stopped
	rec, ok, err = a.Read()
	if err != nil || !ok || !rec.Timestamp.Equal(at(20)) {
		t.Fatalf("second Read() = %v, %v, %v", rec.Timestamp, ok, err)
	}
	if _, ok, err := a.Read(); ok || err != nil {
		t.Fatalf("third Read() = %v, %v, want nothing", ok, err)
	}
}

func TestArchive_ReadSkipsUnscheduledAndFuture(t *testing.T) {
	a := newArchive(t, storage.NewMemory(), at(25))
	writeAll(t, a, cmd(5, false), cmd(25, true), cmd(40, true), cmd(15, true))

	rec, ok, err := a.NextDue()
	if err != nil || !ok {
		t.Fatalf("NextDue() = %v, %v", ok, err)
	}
	if !rec.Timestamp.Equal(at(15)) {
		t.Fatalf("NextDue() timestamp = %v, want %v", rec.Timestamp, at(15))
	}
}

func TestArchive_ReadReadsClockOnce(t *testing.T) {
	calls := 0
	clock := ClockFunc(func() time.Time {
		calls++
		return at(100)
	})
	a, err := New(storage.NewMemory(), WithClock(clock))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	writeAll(t, a, cmd(200, true), cmd(300, true), cmd(400, true))

	if _, ok, err := a.NextDue(); ok || err != nil {
		t.Fatalf("NextDue() = %v, %v", ok, err)
	}
	if calls != 1 {
		t.Fatalf("clock read %d times, want 1", calls)
	}
}

func TestArchive_ReadOutsideSession(t *testing.T) {
	a := newArchive(t, storage.NewMemory(), at(25))
	writeAll(t, a, cmd(10, true))

	if _, ok, err := a.Read(); ok || err != nil {
		t.Fatalf("Read() outside session = %v, %v", ok, err)
	}
	if a.Faults() != 0 {
		t.Fatalf("faults = %d, want 0", a.Faults())
	}
}

func TestArchive_ReadMissingArchive(t *testing.T) {
	a := newArchive(t, storage.NewMemory(), at(25))
	a.BeginReading()
	defer a.EndReading()

	if _, ok, err := a.Read(); ok || err != nil {
		t.Fatalf("Read() on missing archive = %v, %v", ok, err)
	}
	if a.Faults() != 0 {
		t.Fatalf("faults = %d, want 0", a.Faults())
	}
}

func TestArchive_WriteDuringSessionIsNoop(t *testing.T) {
	a := newArchive(t, storage.NewMemory(), at(25))
	writeAll(t, a, cmd(10, true))

	a.BeginReading()
	before, err := a.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if err := a.Write(cmd(20, true)); !errors.Is(err, ErrReadingInProgress) {
		t.Fatalf("Write() during session error = %v, want ErrReadingInProgress", err)
	}
	after, err := a.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if before != after {
		t.Fatalf("size changed from %d to %d", before, after)
	}
	if err := a.EndReading(); err != nil {
		t.Fatalf("EndReading: %v", err)
	}

	if a.Faults() != 0 {
		t.Fatalf("usage error counted as fault")
	}
	if _, err := a.Records(); err != nil {
		t.Fatalf("Records after session: %v", err)
	}
}

func TestArchive_WriteWithHandleOpen(t *testing.T) {
	mem := storage.NewMemory()
	a := newArchive(t, mem, epoch)
	f, err := mem.Open("other", storage.ModeAppend)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	a.file = f
	defer f.Close()

	err = a.Write(cmd(1, true))
	if !errors.Is(err, ErrHandleOpen) {
		t.Fatalf("Write() error = %v, want ErrHandleOpen", err)
	}
	if !IsUsage(err) || a.Faults() != 0 {
		t.Fatalf("usage error counted as fault")
	}
	if exists(t, mem, a.Name()) {
		t.Fatal("refused write created the archive")
	}
}

func TestArchive_SizeIsSumOfFrames(t *testing.T) {
	a := newArchive(t, storage.NewMemory(), epoch)
	recs := []telecommand.Record{cmd(1, true, 1, 2), cmd(2, true, 3, 4), cmd(3, true, 5, 6)}
	writeAll(t, a, recs...)

	n, err := a.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	var want int64
	for _, rec := range recs {
		want += frameLen(t, rec)
	}
	if n != want {
		t.Fatalf("Size() = %d, want %d", n, want)
	}
	if a.file != nil {
		t.Fatal("Size left a handle open")
	}
	if err := a.Write(cmd(4, true)); err != nil {
		t.Fatalf("Write after Size: %v", err)
	}
}

func TestArchive_EraseThenSize(t *testing.T) {
	a := newArchive(t, storage.NewMemory(), epoch)
	writeAll(t, a, cmd(1, true), cmd(2, true))

	if err := a.Erase(); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	n, err := a.Size()
	if err != nil || n != 0 {
		t.Fatalf("Size() after erase = %d, %v, want 0, nil", n, err)
	}
	recs, err := a.Records()
	if err != nil || len(recs) != 0 {
		t.Fatalf("Records() after erase = %v, %v", recs, err)
	}
}

func TestArchive_EraseMissingSucceeds(t *testing.T) {
	a := newArchive(t, storage.NewMemory(), epoch)
	if err := a.Erase(); err != nil {
		t.Fatalf("Erase() on missing archive: %v", err)
	}
	if a.Faults() != 0 {
		t.Fatalf("faults = %d, want 0", a.Faults())
	}
}

func TestArchive_EraseDuringSession(t *testing.T) {
	a := newArchive(t, storage.NewMemory(), at(25))
	writeAll(t, a, cmd(10, true))

	a.BeginReading()
	if err := a.Erase(); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	if _, ok, err := a.Read(); ok || err != nil {
		t.Fatalf("Read() after erase = %v, %v", ok, err)
	}
	if err := a.EndReading(); err != nil {
		t.Fatalf("EndReading: %v", err)
	}
}

func TestArchive_Compact(t *testing.T) {
	mem := storage.NewMemory()
	for _, s := range []Strategy{StrategySwap, StrategyReplay} {
		t.Run(s.String(), func(t *testing.T) {
			var fsys storage.FileSystem = mem
			if s == StrategyReplay {
				fsys = noRename{mem}
			}
			obs := &recorder{}
			a := newArchive(t, fsys, epoch, WithStrategy(s), WithObserver(obs))
			if err := a.Erase(); err != nil {
				t.Fatalf("Erase: %v", err)
			}
			writeAll(t, a, cmd(10, true), cmd(20, true), cmd(30, false), cmd(20, false))

			res, err := a.Compact(at(20))
			if err != nil {
				t.Fatalf("Compact: %v", err)
			}
			if res.Kept != 2 || res.Removed != 2 || res.Corrupt != 0 || res.Strategy != s {
				t.Fatalf("Compact() = %+v", res)
			}

			got, err := a.Records()
			if err != nil {
				t.Fatalf("Records: %v", err)
			}
			if want := []time.Time{at(10), at(30)}; !reflect.DeepEqual(timestamps(got), want) {
				t.Fatalf("after compaction = %v, want %v", timestamps(got), want)
			}
			if exists(t, mem, a.StagingName()) {
				t.Fatal("staging still exists")
			}
			if len(obs.compacts) != 1 {
				t.Fatalf("OnCompact called %d times, want 1", len(obs.compacts))
			}
		})
	}
}

func TestArchive_CompactEndsSession(t *testing.T) {
	a := newArchive(t, storage.NewMemory(), at(25))
	writeAll(t, a, cmd(10, true), cmd(20, true))

	a.BeginReading()
	if _, err := a.Compact(at(10)); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if a.Reading() {
		t.Fatal("session still open after compaction")
	}
}

func TestArchive_CompactToEmpty(t *testing.T) {
	mem := storage.NewMemory()
	a := newArchive(t, mem, epoch)
	writeAll(t, a, cmd(10, true), cmd(10, false))

	res, err := a.Compact(at(10))
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if res.Kept != 0 || res.Removed != 2 {
		t.Fatalf("Compact() = %+v", res)
	}
	if exists(t, mem, a.Name()) || exists(t, mem, a.StagingName()) {
		t.Fatal("archive or staging left behind")
	}
}

func TestArchive_CompactMissingArchive(t *testing.T) {
	mem := storage.NewMemory()
	a := newArchive(t, mem, epoch)
	res, err := a.Compact(at(10))
	if err != nil || res.Kept != 0 || res.Removed != 0 {
		t.Fatalf("Compact() = %+v, %v", res, err)
	}
	if exists(t, mem, a.Name()) {
		t.Fatal("compaction created the archive")
	}
}

func TestArchive_CompactRemovesStaleStaging(t *testing.T) {
	mem := storage.NewMemory()
	if err := afero.WriteFile(mem.Fs(), "/updt_db", []byte("leftover"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	a := newArchive(t, mem, epoch)
	writeAll(t, a, cmd(10, true), cmd(20, true))

	if _, err := a.Compact(at(10)); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	got, err := a.Records()
	if err != nil || len(got) != 1 || !got[0].Timestamp.Equal(at(20)) {
		t.Fatalf("Records() = %v, %v", timestamps(got), err)
	}
}

func TestArchive_RewriteExcluding(t *testing.T) {
	a := newArchive(t, storage.NewMemory(), epoch)
	writeAll(t, a, cmd(1, true), cmd(2, false), cmd(3, true), cmd(4, false))

	res, err := a.RewriteExcluding(func(r telecommand.Record) bool { return !r.Scheduled })
	if err != nil {
		t.Fatalf("RewriteExcluding: %v", err)
	}
	if res.Kept != 2 || res.Removed != 2 {
		t.Fatalf("RewriteExcluding() = %+v", res)
	}
	got, _ := a.Records()
	if want := []time.Time{at(1), at(3)}; !reflect.DeepEqual(timestamps(got), want) {
		t.Fatalf("after rewrite = %v, want %v", timestamps(got), want)
	}
}

// corruptFrame overwrites the command byte of the frame starting at off.
func corruptFrame(t *testing.T, mem *storage.AferoFS, name string, off int64) {
	t.Helper()
	path := "/" + name
	data, err := afero.ReadFile(mem.Fs(), path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if data[off] != frame.FEND {
		t.Fatalf("no frame at offset %d", off)
	}
	data[off+1] = 0x05
	if err := afero.WriteFile(mem.Fs(), path, data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestArchive_CorruptFrameAbortsRead(t *testing.T) {
	mem := storage.NewMemory()
	obs := &recorder{}
	a := newArchive(t, mem, at(25), WithObserver(obs))
	recs := []telecommand.Record{cmd(10, false), cmd(40, true), cmd(15, true)}
	writeAll(t, a, recs...)
	corruptFrame(t, mem, a.Name(), frameLen(t, recs[0]))

	a.BeginReading()
	_, ok, err := a.Read()
	a.EndReading()
	if ok {
		t.Fatal("Read() returned a record past a corrupt frame")
	}
	if !errors.Is(err, frame.ErrCorrupt) {
		t.Fatalf("Read() error = %v, want frame.ErrCorrupt", err)
	}
	if a.Faults() != 1 || !errors.Is(a.LastFault(), frame.ErrCorrupt) {
		t.Fatalf("faults = %d, last = %v", a.Faults(), a.LastFault())
	}
	if !reflect.DeepEqual(obs.faults, []FaultKind{FaultCorrupt}) {
		t.Fatalf("observed faults = %v", obs.faults)
	}

	// compaction drops the damaged frame
	res, err := a.Compact(at(999))
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if res.Kept != 2 || res.Corrupt != 1 {
		t.Fatalf("Compact() = %+v", res)
	}
	if a.Faults() != 2 {
		t.Fatalf("faults after compaction = %d, want 2", a.Faults())
	}
	rec, ok, err := a.NextDue()
	if err != nil || !ok || !rec.Timestamp.Equal(at(15)) {
		t.Fatalf("NextDue() after repair = %v, %v, %v", rec.Timestamp, ok, err)
	}
}

func TestArchive_TornWrite(t *testing.T) {
	mem := storage.NewMemory()
	faulty := storage.NewFaulty(mem)
	a := newArchive(t, faulty, at(100))
	writeAll(t, a, cmd(10, true))

	faulty.InjectTornWrite(a.Name(), 9)
	if err := a.Write(cmd(20, true)); !errors.Is(err, storage.ErrInjected) {
		t.Fatalf("torn Write() error = %v, want ErrInjected", err)
	}
	faulty.Clear(storage.OpWrite, a.Name())
	writeAll(t, a, cmd(30, true))

	if _, err := a.Records(); !errors.Is(err, frame.ErrCorrupt) {
		t.Fatalf("Records() error = %v, want frame.ErrCorrupt", err)
	}

	res, err := a.Compact(at(999))
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if res.Kept != 2 || res.Corrupt != 1 {
		t.Fatalf("Compact() = %+v", res)
	}
	got, err := a.Records()
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if want := []time.Time{at(10), at(30)}; !reflect.DeepEqual(timestamps(got), want) {
		t.Fatalf("after repair = %v, want %v", timestamps(got), want)
	}
}

func TestArchive_RepeatedReadReturnsSameRecord(t *testing.T) {
	a := newArchive(t, storage.NewMemory(), at(25))
	writeAll(t, a, cmd(10, true), cmd(20, true))

	for i := 0; i < 3; i++ {
		rec, ok, err := a.NextDue()
		if err != nil || !ok || !rec.Timestamp.Equal(at(10)) {
			t.Fatalf("NextDue() #%d = %v, %v, %v", i, rec.Timestamp, ok, err)
		}
	}
}

func TestArchive_PopDue(t *testing.T) {
	a := newArchive(t, storage.NewMemory(), at(25))
	writeAll(t, a, cmd(10, true), cmd(30, true), cmd(20, true))

	for _, want := range []time.Time{at(10), at(20)} {
		rec, ok, err := a.PopDue()
		if err != nil || !ok {
			t.Fatalf("PopDue() = %v, %v", ok, err)
		}
		if !rec.Timestamp.Equal(want) {
			t.Fatalf("PopDue() timestamp = %v, want %v", rec.Timestamp, want)
		}
	}
	if _, ok, err := a.PopDue(); ok || err != nil {
		t.Fatalf("PopDue() with nothing due = %v, %v", ok, err)
	}
	got, _ := a.Records()
	if want := []time.Time{at(30)}; !reflect.DeepEqual(timestamps(got), want) {
		t.Fatalf("remaining = %v, want %v", timestamps(got), want)
	}
}

func TestArchive_Faults(t *testing.T) {
	tests := []struct {
		name string
		op   storage.Op
		res  string
		call func(a *Archive) error
		kind FaultKind
	}{
		{"write open", storage.OpOpenAppend, DefaultName, func(a *Archive) error {
			return a.Write(cmd(1, true))
		}, FaultIO},
		{"write", storage.OpWrite, DefaultName, func(a *Archive) error {
			return a.Write(cmd(1, true))
		}, FaultIO},
		{"close", storage.OpClose, DefaultName, func(a *Archive) error {
			return a.Write(cmd(1, true))
		}, FaultIO},
		{"size", storage.OpOpenRead, DefaultName, func(a *Archive) error {
			_, err := a.Size()
			return err
		}, FaultIO},
		{"read", storage.OpOpenRead, DefaultName, func(a *Archive) error {
			a.BeginReading()
			defer a.EndReading()
			_, _, err := a.Read()
			return err
		}, FaultIO},
		{"erase", storage.OpRemove, DefaultName, func(a *Archive) error {
			return a.Erase()
		}, FaultIO},
		{"staging open", storage.OpOpenAppend, DefaultStagingName, func(a *Archive) error {
			_, err := a.Compact(at(1))
			return err
		}, FaultIO},
		{"staging sync", storage.OpSync, DefaultStagingName, func(a *Archive) error {
			_, err := a.Compact(at(1))
			return err
		}, FaultIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := storage.NewMemory()
			faulty := storage.NewFaulty(mem)
			obs := &recorder{}
			a := newArchive(t, faulty, at(100), WithObserver(obs))
			writeAll(t, a, cmd(1, true), cmd(2, true))

			faulty.Inject(tt.op, tt.res, nil)
			err := tt.call(a)
			if !errors.Is(err, storage.ErrInjected) {
				t.Fatalf("error = %v, want ErrInjected", err)
			}
			if a.Faults() != 1 {
				t.Fatalf("faults = %d, want 1", a.Faults())
			}
			if !errors.Is(a.LastFault(), storage.ErrInjected) {
				t.Fatalf("LastFault() = %v", a.LastFault())
			}
			if !reflect.DeepEqual(obs.faults, []FaultKind{tt.kind}) {
				t.Fatalf("observed faults = %v, want [%v]", obs.faults, tt.kind)
			}

			a.ClearFaults()
			if a.Faults() != 0 || a.LastFault() != nil {
				t.Fatal("ClearFaults did not reset")
			}
		})
	}
}

func TestArchive_FailedCompactionLeavesArchive(t *testing.T) {
	tests := []struct {
		name string
		op   storage.Op
		res  string
	}{
		{"staging write", storage.OpWrite, DefaultStagingName},
		{"rename", storage.OpRename, DefaultStagingName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := storage.NewMemory()
			faulty := storage.NewFaulty(mem)
			a := newArchive(t, faulty, epoch, WithStrategy(StrategySwap))
			writeAll(t, a, cmd(10, true), cmd(20, true), cmd(30, true))

			faulty.Inject(tt.op, tt.res, nil)
			if _, err := a.Compact(at(20)); !errors.Is(err, storage.ErrInjected) {
				t.Fatalf("Compact() error = %v, want ErrInjected", err)
			}
			faulty.Reset()

			got, err := a.Records()
			if err != nil {
				t.Fatalf("Records: %v", err)
			}
			if want := []time.Time{at(10), at(20), at(30)}; !reflect.DeepEqual(timestamps(got), want) {
				t.Fatalf("archive = %v, want %v", timestamps(got), want)
			}
			if exists(t, mem, DefaultStagingName) {
				t.Fatal("staging left behind")
			}
		})
	}
}

func TestArchive_RecordTooLong(t *testing.T) {
	mem := storage.NewMemory()
	obs := &recorder{}
	a := newArchive(t, mem, epoch, WithMaxRecordLen(telecommand.MinLen+4), WithObserver(obs))

	if err := a.Write(cmd(1, true, 1, 2, 3, 4)); err != nil {
		t.Fatalf("Write at limit: %v", err)
	}
	if err := a.Write(cmd(2, true, 1, 2, 3, 4, 5)); !errors.Is(err, ErrRecordTooLong) {
		t.Fatalf("Write over limit error = %v, want ErrRecordTooLong", err)
	}
	if !reflect.DeepEqual(obs.faults, []FaultKind{FaultEncode}) {
		t.Fatalf("observed faults = %v", obs.faults)
	}
	if len(obs.appends) != 1 {
		t.Fatalf("appends = %v, want one", obs.appends)
	}
	got, err := a.Records()
	if err != nil || len(got) != 1 {
		t.Fatalf("Records() = %d records, %v", len(got), err)
	}
}

func TestArchive_Recover(t *testing.T) {
	for _, s := range []Strategy{StrategySwap, StrategyReplay} {
		t.Run(s.String(), func(t *testing.T) {
			mem := storage.NewMemory()
			a := newArchive(t, mem, epoch, WithStrategy(s))

			if r, err := a.Recover(); err != nil || r != RecoveryNone {
				t.Fatalf("Recover() clean = %v, %v", r, err)
			}

			// an archive written under the staging name stands in for a
			// compaction cut off after the erase
			staged := newArchive(t, mem, epoch, WithNames(DefaultStagingName, "scratch"))
			writeAll(t, staged, cmd(10, true), cmd(30, true))

			r, err := a.Recover()
			if err != nil || r != RecoveryPromoted {
				t.Fatalf("Recover() = %v, %v, want promoted", r, err)
			}
			got, err := a.Records()
			if err != nil {
				t.Fatalf("Records: %v", err)
			}
			if want := []time.Time{at(10), at(30)}; !reflect.DeepEqual(timestamps(got), want) {
				t.Fatalf("promoted = %v, want %v", timestamps(got), want)
			}
			if exists(t, mem, DefaultStagingName) {
				t.Fatal("staging left behind")
			}

			writeAll(t, staged, cmd(50, true))
			r, err = a.Recover()
			if err != nil || r != RecoveryDiscarded {
				t.Fatalf("Recover() = %v, %v, want discarded", r, err)
			}
			got, _ = a.Records()
			if len(got) != 2 || exists(t, mem, DefaultStagingName) {
				t.Fatalf("after discard: %d records, staging present = %v", len(got), exists(t, mem, DefaultStagingName))
			}
		})
	}
}

func TestArchive_InterruptedReplayRecovers(t *testing.T) {
	mem := storage.NewMemory()
	faulty := storage.NewFaulty(mem)
	a := newArchive(t, faulty, epoch, WithStrategy(StrategyReplay))
	writeAll(t, a, cmd(10, true), cmd(20, true), cmd(30, true))

	// the erase goes through but the archive cannot be recreated
	faulty.Inject(storage.OpOpenAppend, DefaultName, nil)
	if _, err := a.Compact(at(20)); !errors.Is(err, storage.ErrInjected) {
		t.Fatalf("Compact() error = %v, want ErrInjected", err)
	}
	if exists(t, mem, DefaultName) || !exists(t, mem, DefaultStagingName) {
		t.Fatal("expected only staging to remain")
	}
	faulty.Reset()

	r, err := a.Recover()
	if err != nil || r != RecoveryPromoted {
		t.Fatalf("Recover() = %v, %v", r, err)
	}
	got, err := a.Records()
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if want := []time.Time{at(10), at(30)}; !reflect.DeepEqual(timestamps(got), want) {
		t.Fatalf("recovered = %v, want %v", timestamps(got), want)
	}
}

// appendBudget lets a fixed number of appends to one resource through and
// fails the rest. A negative budget is unlimited.
type appendBudget struct {
	storage.FileSystem
	name string
	left int
}

func (b *appendBudget) Open(name string, mode storage.Mode) (storage.File, error) {
	if name == b.name && mode == storage.ModeAppend && b.left >= 0 {
		if b.left == 0 {
			return nil, storage.ErrInjected
		}
		b.left--
	}
	return b.FileSystem.Open(name, mode)
}

func TestArchive_ReplayCutOffMidwayResumes(t *testing.T) {
	mem := storage.NewMemory()
	budget := &appendBudget{FileSystem: mem, name: DefaultName, left: -1}
	a := newArchive(t, budget, epoch, WithStrategy(StrategyReplay))
	writeAll(t, a, cmd(10, true), cmd(20, true), cmd(30, true), cmd(40, true))

	// only the first survivor makes it back before the failure
	budget.left = 1
	if _, err := a.Compact(at(20)); !errors.Is(err, storage.ErrInjected) {
		t.Fatalf("Compact() error = %v, want ErrInjected", err)
	}
	got, err := a.Records()
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if want := []time.Time{at(10)}; !reflect.DeepEqual(timestamps(got), want) {
		t.Fatalf("after cut-off = %v, want %v", timestamps(got), want)
	}
	budget.left = -1

	r, err := a.Recover()
	if err != nil || r != RecoveryResumed {
		t.Fatalf("Recover() = %v, %v, want resumed", r, err)
	}
	got, err = a.Records()
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if want := []time.Time{at(10), at(30), at(40)}; !reflect.DeepEqual(timestamps(got), want) {
		t.Fatalf("resumed = %v, want %v", timestamps(got), want)
	}
	if exists(t, mem, DefaultStagingName) {
		t.Fatal("staging left behind")
	}

	size, err := a.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	var want int64
	for _, rec := range got {
		want += frameLen(t, rec)
	}
	if size != want {
		t.Fatalf("Size() = %d, want %d", size, want)
	}
}

func TestArchive_RewriteSelectErrorLeavesArchive(t *testing.T) {
	errStop := errors.New("stop")
	for _, s := range []Strategy{StrategySwap, StrategyReplay} {
		t.Run(s.String(), func(t *testing.T) {
			mem := storage.NewMemory()
			obs := &recorder{}
			a := newArchive(t, mem, epoch, WithStrategy(s), WithObserver(obs))
			writeAll(t, a, cmd(10, true), cmd(20, true), cmd(30, true))

			seen := 0
			_, err := a.RewriteSelect(func(rec telecommand.Record) (bool, error) {
				seen++
				if rec.Primary.APID == 20 {
					return false, errStop
				}
				return true, nil
			})
			if !errors.Is(err, errStop) {
				t.Fatalf("RewriteSelect() error = %v, want errStop", err)
			}
			if seen != 2 {
				t.Fatalf("predicate called %d times, want 2", seen)
			}

			got, err := a.Records()
			if err != nil {
				t.Fatalf("Records: %v", err)
			}
			if want := []time.Time{at(10), at(20), at(30)}; !reflect.DeepEqual(timestamps(got), want) {
				t.Fatalf("archive = %v, want %v", timestamps(got), want)
			}
			if exists(t, mem, DefaultStagingName) {
				t.Fatal("staging left behind")
			}
			if len(obs.compacts) != 0 || len(obs.faults) != 0 {
				t.Fatalf("compacts = %v, faults = %v", obs.compacts, obs.faults)
			}
		})
	}
}

func TestIsCorrupt(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{fmt.Errorf("read: %w", frame.ErrCorrupt), true},
		{frame.ErrTooLong, true},
		{fmt.Errorf("decode: %w", telecommand.ErrMalformed), true},
		{storage.ErrInjected, false},
		{ErrRecordTooLong, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsCorrupt(tt.err); got != tt.want {
			t.Errorf("IsCorrupt(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestArchive_RecoverDuringSession(t *testing.T) {
	a := newArchive(t, storage.NewMemory(), epoch)
	a.BeginReading()
	defer a.EndReading()
	if _, err := a.Recover(); !errors.Is(err, ErrReadingInProgress) {
		t.Fatalf("Recover() error = %v, want ErrReadingInProgress", err)
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want Strategy
		ok   bool
	}{
		{"", StrategyAuto, true},
		{"auto", StrategyAuto, true},
		{"swap", StrategySwap, true},
		{"replay", StrategyReplay, true},
		{"copy", StrategyAuto, false},
	}
	for _, tt := range tests {
		got, ok := ParseStrategy(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseStrategy(%q) = %v, %v, want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
