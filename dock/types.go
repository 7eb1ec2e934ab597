package dock

import (
	"math"
	"time"
)

// Point represents a 2D coordinate in metres
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pose is a planar position plus heading (radians, CCW from +x)
type Pose struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
}

// AffineMatrix for 2D transforms: x' = ax + by + tx, y' = cx + dy + ty
type AffineMatrix struct {
	A  float64 `json:"a"`
	B  float64 `json:"b"`
	Tx float64 `json:"tx"`
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	Ty float64 `json:"ty"`
}

// Identity returns an identity matrix (no transformation)
func Identity() AffineMatrix {
	return AffineMatrix{A: 1, B: 0, Tx: 0, C: 0, D: 1, Ty: 0}
}

// Matrix returns the rigid transform that maps the pose's local frame into its parent frame.
func (p Pose) Matrix() AffineMatrix {
	return CreateRotationTranslation(p.Heading, p.X, p.Y)
}

// PoseFromMatrix extracts translation and heading from a rigid transform.
func PoseFromMatrix(m AffineMatrix) Pose {
	return Pose{X: m.Tx, Y: m.Ty, Heading: NormalizeHeading(math.Atan2(m.C, m.A))}
}

// Candidate is a contiguous run of filtered scan points hypothesised to contain the fixture.
type Candidate struct {
	Index  int     `json:"index"`
	Start  int     `json:"start"` // inclusive index into the filtered point sequence
	End    int     `json:"end"`   // exclusive
	Points []Point `json:"-"`
}

// Len returns the number of points in the candidate
func (c Candidate) Len() int {
	return len(c.Points)
}

// PoseEstimate is the fitted fixture pose for one candidate plus its match quality.
type PoseEstimate struct {
	Pose
	Score          float64 `json:"score"`
	CandidateIndex int     `json:"candidateIndex"`
	Residual       float64 `json:"residual"`       // RMS point-to-profile distance of inliers (m)
	InlierFraction float64 `json:"inlierFraction"` // inliers / candidate points
	Coverage       float64 `json:"coverage"`       // template features seen / template features
	Inliers        int     `json:"inliers"`
	Iterations     int     `json:"iterations"`
	Converged      bool    `json:"converged"`
	Degenerate     bool    `json:"degenerate"`
}

// Sentinel returns the estimate used when a scan yields no viable candidate.
func Sentinel() PoseEstimate {
	return PoseEstimate{CandidateIndex: -1}
}

// IsSentinel reports whether e is the no-candidate result
func (e PoseEstimate) IsSentinel() bool {
	return e.CandidateIndex < 0
}

// FrameTransform is a rigid transform between two named frames, as carried on the tf topic.
// The pose locates the child frame's origin inside the parent frame.
type FrameTransform struct {
	Parent  string  `yaml:"parent" json:"parent"`
	Child   string  `yaml:"child" json:"child"`
	X       float64 `yaml:"x" json:"x"`
	Y       float64 `yaml:"y" json:"y"`
	Heading float64 `yaml:"heading" json:"heading"`
}

// Matrix returns the child-to-parent transform
func (ft FrameTransform) Matrix() AffineMatrix {
	return Pose{X: ft.X, Y: ft.Y, Heading: ft.Heading}.Matrix()
}

// TemplateConfig describes the fixture geometry as loaded from config
type TemplateConfig struct {
	Width            float64 `yaml:"width" json:"width"`                         // footprint extent along the face (m)
	Depth            float64 `yaml:"depth" json:"depth"`                         // footprint extent into the fixture (m)
	Profile          []Point `yaml:"profile,omitempty" json:"profile,omitempty"` // visible face polyline, local frame
	SampleSpacing    float64 `yaml:"sampleSpacing,omitempty" json:"sampleSpacing,omitempty"`
	ApproachDistance float64 `yaml:"approachDistance,omitempty" json:"approachDistance,omitempty"` // goal stand-off in front of the face (m)
}

// CandidateConfig controls scan segmentation and quick rejection
type CandidateConfig struct {
	MaxRange           float64 `yaml:"maxRange" json:"maxRange"`                     // readings at or beyond this are "no return"
	ClusterGap         float64 `yaml:"clusterGap" json:"clusterGap"`                 // split runs where neighbours are farther apart (m)
	MergeGap           float64 `yaml:"mergeGap" json:"mergeGap"`                     // largest jump bridged when joining neighbouring runs; 0 uses the template depth
	MinPoints          int     `yaml:"minPoints" json:"minPoints"`                   // smallest run that can constrain a pose
	ExtentSlack        float64 `yaml:"extentSlack" json:"extentSlack"`               // fractional slack on the footprint extent
	MinVisibleFraction float64 `yaml:"minVisibleFraction" json:"minVisibleFraction"` // smallest run extent as a fraction of width
	WindowStride       int     `yaml:"windowStride" json:"windowStride"`             // sliding window step (points) over oversized runs
	MaxCandidates      int     `yaml:"maxCandidates" json:"maxCandidates"`
	WrapAround         bool    `yaml:"wrapAround" json:"wrapAround"` // join the last and first run of a full-circle scan
}

// ScorerConfig holds configuration for pose refinement and scoring.
// All distances are in metres, angles in radians.
type ScorerConfig struct {
	MaxIterations       int     `yaml:"maxIterations" json:"maxIterations"`
	TranslationEpsilon  float64 `yaml:"translationEpsilon" json:"translationEpsilon"` // converged when the step moves less than this
	HeadingEpsilon      float64 `yaml:"headingEpsilon" json:"headingEpsilon"`
	MaxCorrespondDist   float64 `yaml:"maxCorrespondDist" json:"maxCorrespondDist"`
	InlierTolerance     float64 `yaml:"inlierTolerance" json:"inlierTolerance"`
	CoverageTolerance   float64 `yaml:"coverageTolerance" json:"coverageTolerance"`
	DegenerateRatio     float64 `yaml:"degenerateRatio" json:"degenerateRatio"`         // min/max PCA eigenvalue below this is collinear
	NonConvergedPenalty float64 `yaml:"nonConvergedPenalty" json:"nonConvergedPenalty"` // score multiplier when the iteration cap is hit
}

// BridgeConfig configures the navigation adapter
type BridgeConfig struct {
	Threshold    *float64      `yaml:"threshold,omitempty" json:"threshold,omitempty"` // accept when score >= threshold (default 10)
	SensorFrame  string        `yaml:"sensorFrame" json:"sensorFrame"`
	BaseFrame    string        `yaml:"baseFrame" json:"baseFrame"`
	FrameTimeout time.Duration `yaml:"frameTimeout" json:"frameTimeout"`
	GoalTimeout  time.Duration `yaml:"goalTimeout" json:"goalTimeout"`
}

// GetThreshold returns the acceptance threshold or the default if not set
func (bc *BridgeConfig) GetThreshold() float64 {
	if bc.Threshold != nil {
		return *bc.Threshold
	}
	return DefaultThreshold
}

// Config represents the full configuration file
type Config struct {
	MQTT       MQTTConfig       `yaml:"mqtt" json:"mqtt"`
	Template   TemplateConfig   `yaml:"template" json:"template"`
	Candidates CandidateConfig  `yaml:"candidates" json:"candidates"`
	Scorer     ScorerConfig     `yaml:"scorer" json:"scorer"`
	Bridge     BridgeConfig     `yaml:"bridge" json:"bridge"`
	Fetch      FetchConfig      `yaml:"fetch" json:"fetch"`
	Frames     []FrameTransform `yaml:"frames,omitempty" json:"frames,omitempty"` // static transforms seeded into the frame tree
	Workers    int              `yaml:"workers,omitempty" json:"workers,omitempty"`
}

// FetchConfig controls pulling scans over HTTP
type FetchConfig struct {
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	Retries int           `yaml:"retries" json:"retries"` // attempts after the first
	Backoff time.Duration `yaml:"backoff" json:"backoff"` // first retry delay, doubled per retry
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
	ScanTopic     string `yaml:"scanTopic" json:"scanTopic"`
}

// EstimatorConfig returns the estimator settings carried by the config file
func (c *Config) EstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		Candidates: c.Candidates,
		Scorer:     c.Scorer,
		Workers:    c.Workers,
	}
}
