package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/browser"

	"github.com/char5742/touchpad-frames/internal/api"
	"github.com/char5742/touchpad-frames/internal/config"
	"github.com/char5742/touchpad-frames/internal/device"
	"github.com/char5742/touchpad-frames/internal/event"
	"github.com/char5742/touchpad-frames/internal/filter"
	"github.com/char5742/touchpad-frames/internal/touchpad"
)

func main() {
	// コマンドライン引数の解析
	useApi := flag.Bool("api", false, "APIサーバーモードで起動します")
	configPath := flag.String("config", "", "設定ファイルのパス (指定しない場合はデフォルトパスを使用)")
	devicePath := flag.String("device", "", "使用するタッチパッドのデバイスノード (指定しない場合は自動検出)")
	port := flag.Int("port", 0, "APIサーバーのポート番号 (指定しない場合は設定ファイルの値)")
	openBrowser := flag.Bool("open", false, "APIサーバーの起動後にブラウザでライブビューを開きます")
	record := flag.String("record", "", "タッチパッドのイベントを <base>.toml と <base>.events に記録します")
	replay := flag.String("replay", "", "記録した <base>.toml と <base>.events を再生します")
	uinput := flag.Bool("uinput", false, "再生したイベントを仮想デバイスにも書き込みます")
	debug := flag.Bool("debug", false, "デバッグ用の診断を出力します")
	flag.Parse()

	// 設定ファイルパスの決定
	cfgPath := config.GetDefaultConfigPath()
	if *configPath != "" {
		cfgPath = *configPath
	}

	// 設定ファイルの読み込み
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		fmt.Printf("設定ファイルの読み込みに失敗しました: %v\nデフォルト設定を使用します\n", err)
		cfg = config.DefaultConfig()
	} else {
		fmt.Printf("設定ファイルを読み込みました: %s\n", cfgPath)
	}
	if *devicePath != "" {
		cfg.Device.Touchpad = *devicePath
	}
	if *port != 0 {
		cfg.API.Port = *port
	}

	// シグナルハンドラの設定
	ctx := handleSignals()

	switch {
	case *replay != "":
		err = runReplay(cfg, *replay, *uinput, *debug)
	case *record != "":
		err = runRecord(ctx, cfg, *record)
	case *useApi:
		fmt.Printf("APIサーバーモードで起動します (ポート: %d)...\n", cfg.API.Port)
		err = runApiServer(ctx, cfg, cfgPath, *openBrowser, *debug)
	default:
		fmt.Println("CLIモードで起動します...")
		err = runCLI(ctx, cfg, *debug)
	}
	if err != nil {
		log.Fatal(err)
	}
}

// デバイスモニターを開始し、タッチパッドの取り外しをサービスに伝える
func startMonitor(service *api.TouchpadService) *device.Monitor {
	monitor, err := device.NewMonitor()
	if err != nil {
		log.Printf("デバイスモニターの作成に失敗しました: %v", err)
		return nil
	}
	monitor.RegisterCallback(service.HandleDeviceEvent)
	if err := monitor.Start(); err != nil {
		log.Printf("デバイスモニターの開始に失敗しました: %v", err)
		return nil
	}
	return monitor
}

// APIサーバーモードでの実行
func runApiServer(ctx context.Context, cfg *config.Config, cfgPath string, openBrowser, debug bool) error {
	service := api.NewTouchpadService(cfg, api.WithDebug(debug))
	if err := service.Start(); err != nil {
		// APIから後で起動できるので続行する
		log.Printf("タッチパッドサービスの起動に失敗しました: %v", err)
	}
	if monitor := startMonitor(service); monitor != nil {
		defer monitor.Stop()
	}

	server := api.NewServer(cfg, cfgPath, service)
	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	if openBrowser {
		if err := browser.OpenURL(server.URL()); err != nil {
			log.Printf("ブラウザを開けませんでした: %v", err)
		}
	}

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("APIサーバーの起動に失敗しました: %w", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			log.Printf("APIサーバーの停止に失敗しました: %v", err)
		}
	}

	if service.IsRunning() {
		service.Stop()
	}
	return nil
}

// CLIモードでの実行
func runCLI(ctx context.Context, cfg *config.Config, debug bool) error {
	service := api.NewTouchpadService(cfg, api.WithDebug(debug))
	if err := service.Start(); err != nil {
		return fmt.Errorf("タッチパッドサービスの起動に失敗しました: %w", err)
	}
	if monitor := startMonitor(service); monitor != nil {
		defer monitor.Stop()
	}

	// シグナルかタッチパッドの切断まで待機
	select {
	case <-ctx.Done():
		service.Stop()
	case <-service.Done():
	}
	return nil
}

// runRecord はタッチパッドの情報とイベントをファイルに記録する
func runRecord(ctx context.Context, cfg *config.Config, base string) error {
	devices, err := device.ScanDevices()
	if err != nil {
		return err
	}
	tpInfo, ok := device.Find(devices, device.KindTouchpad, cfg.Device.Touchpad)
	if !ok {
		return errors.New("タッチパッドが見つかりませんでした")
	}

	dev, err := device.Open(tpInfo.Path)
	if err != nil {
		return err
	}
	defer dev.Close()

	info, err := dev.Info()
	if err != nil {
		return err
	}

	infoFile, err := os.Create(base + ".toml")
	if err != nil {
		return fmt.Errorf("記録ファイルの作成に失敗しました: %w", err)
	}
	err = device.WriteInfo(infoFile, info)
	infoFile.Close()
	if err != nil {
		return err
	}

	eventsFile, err := os.Create(base + ".events")
	if err != nil {
		return fmt.Errorf("記録ファイルの作成に失敗しました: %w", err)
	}
	defer eventsFile.Close()
	w := event.NewWriter(eventsFile)

	fmt.Printf("%s (%s) を記録しています。Ctrl+C で終了します\n", info.Name, tpInfo.Path)
	frames := 0
	for ev := range dev.Events(ctx) {
		if err := w.Write(ev); err != nil {
			return fmt.Errorf("イベントの書き込みに失敗しました: %w", err)
		}
		if ev.IsFrameEnd() {
			frames++
		}
	}
	fmt.Printf("%d フレームを記録しました: %s.events\n", frames, base)
	return nil
}

// runReplay は記録したイベントを処理し、フレームごとのタッチ状態を表示する
func runReplay(cfg *config.Config, base string, uinput, debug bool) error {
	infoFile, err := os.Open(base + ".toml")
	if err != nil {
		return fmt.Errorf("記録ファイルを開けませんでした: %w", err)
	}
	info, err := device.ReadInfoFrom(infoFile)
	infoFile.Close()
	if err != nil {
		return err
	}

	smoothing := filter.NewSmoothing(cfg.Motion.FilterSmoothingFactor, cfg.Motion.FilterWarmUpCount)
	d, err := touchpad.New(info, cfg.ToQuirks(),
		touchpad.WithReporter(touchpad.LogReporter{Device: info.Name, Debug: debug}),
		touchpad.WithConsumers(touchpad.Consumers{Filter: smoothing}),
	)
	if err != nil {
		return err
	}
	d.SetDWT(cfg.Palm.DWT)
	d.SetDWTP(cfg.Palm.DWTP)
	d.SetLeftHanded(cfg.Palm.LeftHanded)

	var virtual *device.Virtual
	if uinput {
		virtual, err = device.CreateVirtual(device.UinputPath, info)
		if err != nil {
			return err
		}
		defer virtual.Close()
	}

	eventsFile, err := os.Open(base + ".events")
	if err != nil {
		return fmt.Errorf("記録ファイルを開けませんでした: %w", err)
	}
	defer eventsFile.Close()
	r := event.NewReader(eventsFile)

	var start time.Time
	frames := 0
	for {
		ev, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("イベントの読み込みに失敗しました: %w", err)
		}
		if start.IsZero() {
			start = ev.Timestamp()
		}

		d.Process(ev)
		if virtual != nil {
			if err := virtual.Write(ev); err != nil {
				return fmt.Errorf("仮想デバイスへの書き込みに失敗しました: %w", err)
			}
		}
		if ev.IsFrameEnd() {
			frames++
			printFrame(os.Stdout, d.Snapshot(ev.Timestamp()), ev.Timestamp().Sub(start))
		}
	}
	fmt.Printf("%d フレームを再生しました (フィルタのリセット: %d 回)\n", frames, smoothing.Restarts())
	return nil
}

// printFrame は1フレーム分のタッチ状態を1行で書く
func printFrame(w io.Writer, s touchpad.Snapshot, offset time.Duration) {
	var b strings.Builder
	fmt.Fprintf(&b, "%9.3fs fingers=%d fake=%d", offset.Seconds(), s.FingersDown, s.FakeFingers)
	if s.Overflow {
		b.WriteString("+")
	}
	if s.Suspended {
		b.WriteString(" suspended")
	}
	if s.Keyboard {
		b.WriteString(" typing")
	}
	if s.Trackpoint {
		b.WriteString(" trackpoint")
	}
	for _, t := range s.Touches {
		fmt.Fprintf(&b, " | %d %s (%d,%d)", t.Index, t.State, t.X, t.Y)
		if t.Pressure != 0 {
			fmt.Fprintf(&b, " p=%d", t.Pressure)
		}
		if t.Palm != "none" {
			fmt.Fprintf(&b, " palm=%s", t.Palm)
		}
		if t.Pinned {
			b.WriteString(" pinned")
		}
		if t.Active {
			fmt.Fprintf(&b, " d=(%d,%d)", t.DeltaX, t.DeltaY)
		}
	}
	fmt.Fprintln(w, b.String())
}

func handleSignals() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("シャットダウンします...")
		cancel()
		// 2回目のシグナルで強制終了
		<-sigChan
		os.Exit(1)
	}()
	return ctx
}
