package quality

import "bytes"

// TrackFindings is what a sample analyzer concluded about one track kind.
type TrackFindings struct {
	Present    bool
	Consistent bool
	Codec      string
}

// BinaryAnalysis is the outcome of scanning a raw (non-playlist) sample.
type BinaryAnalysis struct {
	Video      TrackFindings
	Audio      TrackFindings
	Degenerate bool // sample is dominated by a single repeated byte
}

// SampleAnalyzer decides whether a binary sample carries plausible audio and
// video structure. The marker-byte and byte-distribution heuristics are
// approximations that can misclassify legitimate low-entropy content (silence,
// a solid color card), so they live behind this interface as a replaceable
// strategy rather than being hard-coded into the validator.
type SampleAnalyzer interface {
	Analyze(sample []byte) BinaryAnalysis
}

// MarkerAnalyzer is the default SampleAnalyzer. It looks for H.264/H.265 NAL
// unit start codes for video, ADTS and MP3 sync words for audio, and rejects
// samples whose first KB is dominated by one repeated byte.
type MarkerAnalyzer struct {
	// DegenerateThreshold is the fraction of identical bytes in the first KB
	// above which the sample is rejected as degenerate. Defaults to 0.9.
	DegenerateThreshold float64
}

var (
	nalLong  = []byte{0x00, 0x00, 0x00, 0x01}
	nalShort = []byte{0x00, 0x00, 0x01}
)

func (a MarkerAnalyzer) Analyze(sample []byte) BinaryAnalysis {
	analysis := BinaryAnalysis{}

	if len(sample) == 0 {
		return analysis
	}

	analysis.Degenerate = a.isDegenerate(sample)
	consistent := !analysis.Degenerate

	if bytes.Contains(sample, nalLong) || bytes.Contains(sample, nalShort) {
		analysis.Video = TrackFindings{Present: true, Consistent: consistent}
	}

	if hasADTSSync(sample) {
		analysis.Audio = TrackFindings{Present: true, Consistent: consistent, Codec: "aac"}
	} else if hasMP3Sync(sample) {
		analysis.Audio = TrackFindings{Present: true, Consistent: consistent, Codec: "mp3"}
	}

	return analysis
}

// isDegenerate checks byte-distribution consistency over the first KB.
func (a MarkerAnalyzer) isDegenerate(sample []byte) bool {
	threshold := a.DegenerateThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = 0.9
	}

	window := sample
	if len(window) > 1024 {
		window = window[:1024]
	}

	var counts [256]int
	for _, b := range window {
		counts[b]++
	}

	max := 0
	for _, c := range counts {
		if c > max {
			max = c
		}
	}

	return float64(max) > threshold*float64(len(window))
}

// hasADTSSync scans for an ADTS frame header: 12 sync bits (0xFFF) followed by
// an MPEG-4 layer field of zero.
func hasADTSSync(sample []byte) bool {
	for i := 0; i+1 < len(sample); i++ {
		if sample[i] == 0xFF && sample[i+1]&0xF6 == 0xF0 {
			return true
		}
	}
	return false
}

// hasMP3Sync scans for an MPEG audio frame sync: 11 set bits.
func hasMP3Sync(sample []byte) bool {
	for i := 0; i+1 < len(sample); i++ {
		if sample[i] == 0xFF && sample[i+1]&0xE0 == 0xE0 && sample[i+1]&0x18 != 0x08 {
			return true
		}
	}
	return false
}
