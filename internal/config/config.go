package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/char5742/touchpad-frames/internal/touchpad"
)

// Config はアプリケーション全体の設定を表す構造体
type Config struct {
	Device DeviceConfig `toml:"device"`
	Quirks QuirksConfig `toml:"quirks"`
	Palm   PalmConfig   `toml:"palm"`
	Motion MotionConfig `toml:"motion"`
	API    APIConfig    `toml:"api"`
}

// DeviceConfig は使用するデバイスの設定。空のパスは自動検出
type DeviceConfig struct {
	Touchpad   string `toml:"touchpad"`
	Keyboard   string `toml:"keyboard"`
	Trackpoint string `toml:"trackpoint"`
	// Grab はタッチパッドを占有して他のクライアントに渡さない
	Grab bool `toml:"grab"`
}

// QuirksConfig はデバイス固有の補正
type QuirksConfig struct {
	SynapticsSerial bool `toml:"synaptics_serial"`
	ALPSSerial      bool `toml:"alps_serial"`
	LenovoT450      bool `toml:"lenovo_t450"`
	Wacom           bool `toml:"wacom"`
	TestDevice      bool `toml:"test_device"`
	Apple           bool `toml:"apple"`
	HPPavilionDM4   bool `toml:"hp_pavilion_dm4"`
	PressurePad     bool `toml:"pressure_pad"`

	JumpDetectionDisabled bool `toml:"jump_detection_disabled"`

	// PalmPressureThreshold は0で無効
	PalmPressureThreshold int32 `toml:"palm_pressure_threshold"`
	PalmSizeThreshold     int32 `toml:"palm_size_threshold"`

	// 未設定なら軸の範囲から決める。high/low とも0なら圧力での判定を無効にする
	PressureHigh  *int32 `toml:"pressure_high"`
	PressureLow   *int32 `toml:"pressure_low"`
	TouchSizeHigh *int32 `toml:"touch_size_high"`
	TouchSizeLow  *int32 `toml:"touch_size_low"`

	Clickpad   bool `toml:"clickpad"`
	TopButtons bool `toml:"top_buttons"`
	External   bool `toml:"external"`
	TPKBCombo  bool `toml:"tpkb_combo"`
	Tablet     bool `toml:"tablet"`
}

// PalmConfig は実行時に切り替えられる手のひら判定の設定
type PalmConfig struct {
	DWT        bool `toml:"dwt"`
	DWTP       bool `toml:"dwtp"`
	LeftHanded bool `toml:"left_handed"`
}

// MotionConfig はモーション制御の設定
type MotionConfig struct {
	FilterSmoothingFactor float64 `toml:"filter_smoothing_factor"`
	FilterWarmUpCount     int     `toml:"filter_warm_up_count"`
}

// APIConfig はHTTPサーバーの設定
type APIConfig struct {
	Port int `toml:"port"`
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() *Config {
	return &Config{
		Quirks: QuirksConfig{
			PalmPressureThreshold: 130,
		},
		Palm: PalmConfig{
			DWT:  true,
			DWTP: true,
		},
		Motion: MotionConfig{
			FilterSmoothingFactor: 0.5,
			FilterWarmUpCount:     3,
		},
		API: APIConfig{
			Port: 8080,
		},
	}
}

// GetDefaultConfigDir は設定ファイルを置くディレクトリを返す
func GetDefaultConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "touchpad-frames")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "touchpad-frames")
	}
	return "."
}

// GetDefaultConfigPath は設定ファイルの既定のパスを返す
func GetDefaultConfigPath() string {
	return filepath.Join(GetDefaultConfigDir(), "config.toml")
}

// LoadConfig は設定ファイルから設定を読み込む
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	// ファイルが存在しない場合はデフォルト設定を保存して返す
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := SaveConfig(configPath, config); err != nil {
			return config, err
		}
		return config, nil
	}

	md, err := toml.DecodeFile(configPath, config)
	if err != nil {
		return config, fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return config, fmt.Errorf("設定ファイルに不明なキーがあります: %v", undecoded)
	}
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// SaveConfig は設定をTOMLファイルに保存する
func SaveConfig(configPath string, config *Config) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("設定ディレクトリの作成に失敗しました: %w", err)
	}

	f, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("設定ファイルの作成に失敗しました: %w", err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(config)
}

// Validate は値の範囲を検査する
func (c *Config) Validate() error {
	if f := c.Motion.FilterSmoothingFactor; f < 0 || f > 1 {
		return fmt.Errorf("motion.filter_smoothing_factor は0から1の範囲で指定してください: %v", f)
	}
	if c.Motion.FilterWarmUpCount < 0 {
		return fmt.Errorf("motion.filter_warm_up_count が負の値です: %d", c.Motion.FilterWarmUpCount)
	}
	if p := c.API.Port; p <= 0 || p > 65535 {
		return fmt.Errorf("api.port が範囲外です: %d", p)
	}
	if (c.Quirks.PressureHigh == nil) != (c.Quirks.PressureLow == nil) {
		return fmt.Errorf("quirks.pressure_high と quirks.pressure_low は両方指定してください")
	}
	if (c.Quirks.TouchSizeHigh == nil) != (c.Quirks.TouchSizeLow == nil) {
		return fmt.Errorf("quirks.touch_size_high と quirks.touch_size_low は両方指定してください")
	}
	if c.Quirks.PalmPressureThreshold < 0 {
		return fmt.Errorf("quirks.palm_pressure_threshold が負の値です: %d", c.Quirks.PalmPressureThreshold)
	}
	return nil
}

// ToQuirks はタッチパッドの初期化に渡す quirks に変換する
func (c *Config) ToQuirks() touchpad.Quirks {
	qc := c.Quirks
	var model touchpad.ModelFlags
	for _, m := range []struct {
		set  bool
		flag touchpad.ModelFlags
	}{
		{qc.SynapticsSerial, touchpad.ModelSynapticsSerial},
		{qc.ALPSSerial, touchpad.ModelALPSSerial},
		{qc.LenovoT450, touchpad.ModelLenovoT450},
		{qc.Wacom, touchpad.ModelWacom},
		{qc.TestDevice, touchpad.ModelTestDevice},
		{qc.Apple, touchpad.ModelApple},
		{qc.HPPavilionDM4, touchpad.ModelHPPavilionDM4},
		{qc.PressurePad, touchpad.ModelPressurePad},
	} {
		if m.set {
			model |= m.flag
		}
	}

	threshold := qc.PalmPressureThreshold
	q := touchpad.Quirks{
		Model:                 model,
		JumpDetectionDisabled: qc.JumpDetectionDisabled,
		PalmPressureThreshold: &threshold,
		PalmSizeThreshold:     qc.PalmSizeThreshold,
		Clickpad:              qc.Clickpad,
		TopButtons:            qc.TopButtons,
		External:              qc.External,
		TPKBCombo:             qc.TPKBCombo,
		Tablet:                qc.Tablet,
	}
	if qc.PressureHigh != nil && qc.PressureLow != nil {
		q.PressureRange = &[2]int32{*qc.PressureHigh, *qc.PressureLow}
	}
	if qc.TouchSizeHigh != nil && qc.TouchSizeLow != nil {
		q.TouchSizeRange = &[2]int32{*qc.TouchSizeHigh, *qc.TouchSizeLow}
	}
	return q
}
