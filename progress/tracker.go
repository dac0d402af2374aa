package progress

import (
	"fmt"
	"time"
)

const (
	sampleWindowSeconds = 5
	samplesPerSecond    = 20
	maxSampleCount      = sampleWindowSeconds * samplesPerSecond

	samplingInterval  = time.Second / samplesPerSecond
	reportingInterval = time.Second
)

type sample struct {
	time        time.Time
	transferred uint64
}

// Tracker estimates transfer throughput over a moving sample window
// and emits human-readable progress lines at most once per second
type Tracker struct {
	verb    string
	display func(string)
	clock   func() time.Time

	name                  string
	totalSize             uint64
	transferredSize       uint64
	transferredCompressed uint64
	compressed            bool

	startTime      time.Time
	lastReportTime time.Time
	lastSampleTime time.Time

	samples         []sample
	nextSampleIndex int
}

// NewTracker returns a tracker narrating with the given verb
// ("uploading", "downloading") through the display callback
func NewTracker(verb string, display func(string)) *Tracker {
	return &Tracker{
		verb:    verb,
		display: display,
		clock:   time.Now,
	}
}

func (t *Tracker) addSample(s sample) {
	if len(t.samples) < maxSampleCount {
		t.samples = append(t.samples, s)
	} else {
		t.samples[t.nextSampleIndex] = s
		t.nextSampleIndex++
		if t.nextSampleIndex >= maxSampleCount {
			t.nextSampleIndex = 0
		}
	}
}

func (t *Tracker) minMaxSamples() (sample, sample, bool) {
	if len(t.samples) < 2 {
		return sample{}, sample{}, false
	}

	if len(t.samples) < maxSampleCount {
		return t.samples[0], t.samples[len(t.samples)-1], true
	}

	maxIndex := t.nextSampleIndex - 1
	if t.nextSampleIndex == 0 {
		maxIndex = len(t.samples) - 1
	}

	return t.samples[t.nextSampleIndex], t.samples[maxIndex], true
}

func (t *Tracker) transferSpeed(now time.Time) float64 {
	minSample, maxSample, ok := t.minMaxSamples()
	if !ok {
		// Not enough samples for a moving average.
		elapsed := now.Sub(t.startTime).Seconds()
		return float64(t.transferredSize) / max(elapsed, 0.0001)
	}

	newestTime := maxSample.time
	sinceNewest := now.Sub(newestTime)

	// No samples were received in the sampling window.
	if sinceNewest >= (sampleWindowSeconds+1)*time.Second {
		return 0
	}

	// Too long passed since the last sample, take it into account.
	if sinceNewest >= 250*time.Millisecond {
		newestTime = now
	}

	elapsed := newestTime.Sub(minSample.time).Seconds()
	transferred := maxSample.transferred - minSample.transferred

	return float64(transferred) / max(elapsed, 0.0001)
}

// Begin starts tracking a new transfer and announces it
func (t *Tracker) Begin(name string, totalSize uint64, compressed bool) {
	now := t.clock()

	t.name = name
	t.totalSize = totalSize
	t.transferredSize = 0
	t.transferredCompressed = 0
	t.compressed = compressed
	t.startTime = now
	t.lastReportTime = now
	t.lastSampleTime = now

	t.samples = t.samples[:0]
	t.nextSampleIndex = 0

	readable, units := ReadableSize(totalSize)
	marker := ""
	if compressed {
		marker = "[compressed] "
	}
	t.display(fmt.Sprintf("%s file `%s` %s(%.1f %s)...",
		t.verb, t.name, marker, readable, units))
}

// Progress accounts size transferred bytes (uncompressed) and
// compressedSize bytes as sent on the wire, sampling and reporting on
// their own intervals
func (t *Tracker) Progress(size, compressedSize uint64) {
	now := t.clock()

	t.transferredSize += size
	t.transferredCompressed += compressedSize

	if now.Sub(t.lastSampleTime) >= samplingInterval {
		t.addSample(sample{time: now, transferred: t.transferredSize})
		t.lastSampleTime = now
	}

	if now.Sub(t.lastReportTime) >= reportingInterval {
		percentage := 0.0
		if t.totalSize > 0 {
			percentage = float64(t.transferredSize) / float64(t.totalSize) * 100
		}

		transferred, transferredUnits := ReadableSize(t.transferredSize)
		total, totalUnits := ReadableSize(t.totalSize)

		speed := t.transferSpeed(now)
		readableSpeed, speedUnits := ReadableSize(uint64(speed))

		remainingSize := float64(t.totalSize - t.transferredSize)
		remainingTime := time.Duration(remainingSize / max(speed, 1) * float64(time.Second))

		t.display(fmt.Sprintf("`%s`: %.1f%% - %.1f%s/%.1f%s - %.1f %s/s - remaining %s",
			t.name, percentage, transferred, transferredUnits, total, totalUnits,
			readableSpeed, speedUnits, remainingTime.Round(time.Second)))

		t.lastReportTime = now
	}
}

// End announces transfer completion with the average speed and, for
// compressed transfers, the achieved ratio
func (t *Tracker) End() {
	now := t.clock()

	elapsed := now.Sub(t.startTime)
	speed := float64(t.totalSize) / max(elapsed.Seconds(), 0.0001)

	readable, units := ReadableSize(t.totalSize)
	readableSpeed, speedUnits := ReadableSize(uint64(speed))

	compressionInfo := ""
	if t.compressed {
		ratio := 0.0
		if t.totalSize > 0 {
			ratio = float64(t.transferredCompressed) / float64(t.totalSize)
		}
		compressionInfo = fmt.Sprintf(", compression %.1f%%", ratio*100)
	}

	t.display(fmt.Sprintf("finished %s file `%s` (%.1f %s) in %s (%.1f %s/s)%s",
		t.verb, t.name, readable, units, elapsed.Round(10*time.Millisecond),
		readableSpeed, speedUnits, compressionInfo))

	*t = Tracker{verb: t.verb, display: t.display, clock: t.clock, samples: t.samples[:0]}
}
