package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultSnapshotsSubDir = "snapshots"
	DefaultFaceDBFile      = "face_db.bin"
	DefaultRunStateFile    = "stream_state.json"
)

const (
	defaultMaxFrameWidth          = 1280
	defaultMaxFrameHeight         = 720
	defaultDetectorConfidence     = 0.65
	defaultFaceMatchTolerance     = 0.65
	defaultDuplicateWindowMinutes = 5
	defaultBackgroundIntervalMs   = 500
	defaultReconnectDelaySec      = 5
	defaultDetectorBatchSize      = 8
	defaultSnapshotQueueSize      = 64
	defaultNumSnapshotWorkers     = 2
)

type Config struct {
	// data storage roots
	DataDir      string
	DatabasePath string
	FaceDBPath   string
	RunStatePath string
	SnapshotsDir string

	// HTTP server
	HTTPPort    int
	CORSOrigins string

	// video source defaults
	DefaultSource  string
	MaxFrameWidth  int
	MaxFrameHeight int
	ReconnectDelay int // seconds between reconnect attempts on dead network streams

	// person detection model paths (DNN)
	PersonNetConfigPath string
	PersonNetModelPath  string
	DetectorDevice      string // cpu or cuda
	DetectorConfidence  float64
	DetectorBatchSize   int

	// face detection and encoding model paths (DNN)
	FaceDNNNetConfigPath string
	FaceDNNNetModelPath  string
	FaceEncoderModelPath string
	FaceMatchTolerance   float64

	// attendance behaviour
	DuplicateWindowMinutes int
	BackgroundIntervalMs   int

	// snapshot writer settings
	SnapshotQueueSize  int
	NumSnapshotWorkers int

	Debug bool
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvFloatOrDefault(envVar string, defaultVal float64) float64 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %g. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvBoolOrDefault(envVar string, defaultVal bool) bool {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("Warning: Invalid %s '%s'. Using default %t.", envVar, valStr, defaultVal)
		return defaultVal
	}
	return val
}

func LoadConfig() (Config, error) {
	dataDir := getEnvOrDefault("DATA_DIR", filepath.Join(".", "data"))
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for data dir '%s': %w", dataDir, err)
	}

	dbPath := getEnvOrDefault("DATABASE_PATH", filepath.Join(absDataDir, "attendance.db"))
	faceDBPath := getEnvOrDefault("FACE_DB_PATH", filepath.Join(absDataDir, DefaultFaceDBFile))
	runStatePath := getEnvOrDefault("RUN_STATE_PATH", filepath.Join(absDataDir, DefaultRunStateFile))

	snapshotsSubDir := getEnvOrDefault("SNAPSHOTS_SUBDIR", DefaultSnapshotsSubDir)
	absSnapshotsDir := filepath.Join(absDataDir, snapshotsSubDir)

	personNetConfig := getEnvOrDefault("PERSON_NET_CONFIG_PATH", "./models/yolov4-tiny.cfg")
	personNetModel := getEnvOrDefault("PERSON_NET_MODEL_PATH", "./models/yolov4-tiny.weights")

	faceDNNConfig := getEnvOrDefault("FACE_DNN_CONFIG_PATH", "./models/deploy.prototxt.txt")
	faceDNNModel := getEnvOrDefault("FACE_DNN_MODEL_PATH", "./models/res10_300x300_ssd_iter_140000_fp16.caffemodel")
	faceEncoderModel := getEnvOrDefault("FACE_ENCODER_MODEL_PATH", "./models/openface_nn4.small2.v1.t7")

	cfg := Config{
		DataDir:                absDataDir,
		DatabasePath:           dbPath,
		FaceDBPath:             faceDBPath,
		RunStatePath:           runStatePath,
		SnapshotsDir:           absSnapshotsDir,
		HTTPPort:               getEnvIntOrDefault("HTTP_PORT", 8000),
		CORSOrigins:            getEnvOrDefault("CORS_ORIGINS", "*"),
		DefaultSource:          getEnvOrDefault("DEFAULT_SOURCE", ""),
		MaxFrameWidth:          getEnvIntOrDefault("MAX_FRAME_WIDTH", defaultMaxFrameWidth),
		MaxFrameHeight:         getEnvIntOrDefault("MAX_FRAME_HEIGHT", defaultMaxFrameHeight),
		ReconnectDelay:         getEnvIntOrDefault("RECONNECT_DELAY_SECONDS", defaultReconnectDelaySec),
		PersonNetConfigPath:    personNetConfig,
		PersonNetModelPath:     personNetModel,
		DetectorDevice:         getEnvOrDefault("DETECTOR_DEVICE", "cpu"),
		DetectorConfidence:     getEnvFloatOrDefault("DETECTOR_CONFIDENCE", defaultDetectorConfidence),
		DetectorBatchSize:      getEnvIntOrDefault("DETECTOR_BATCH_SIZE", defaultDetectorBatchSize),
		FaceDNNNetConfigPath:   faceDNNConfig,
		FaceDNNNetModelPath:    faceDNNModel,
		FaceEncoderModelPath:   faceEncoderModel,
		FaceMatchTolerance:     getEnvFloatOrDefault("FACE_MATCH_TOLERANCE", defaultFaceMatchTolerance),
		DuplicateWindowMinutes: getEnvIntOrDefault("DUPLICATE_WINDOW_MINUTES", defaultDuplicateWindowMinutes),
		BackgroundIntervalMs:   getEnvIntOrDefault("BACKGROUND_INTERVAL_MS", defaultBackgroundIntervalMs),
		SnapshotQueueSize:      getEnvIntOrDefault("SNAPSHOT_QUEUE_SIZE", defaultSnapshotQueueSize),
		NumSnapshotWorkers:     getEnvIntOrDefault("NUM_SNAPSHOT_WORKERS", defaultNumSnapshotWorkers),
		Debug:                  getEnvBoolOrDefault("DEBUG", false),
	}

	return cfg, nil
}
