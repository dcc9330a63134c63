// Command simulator plays a tracker against a running server. It registers
// the device over HTTP, then drives a short trip over TCP: a login, a run of
// moving fixes, a stop and a heartbeat.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"fleettrack/internal/protocol"
	"fleettrack/internal/protocol/gt06"
	"fleettrack/internal/protocol/h02"
	"fleettrack/internal/protocol/teltonika"
)

func main() {
	var (
		tcpAddr  = flag.String("tcp", "localhost:5023", "tracker listener address")
		httpAddr = flag.String("http", "http://localhost:8000", "API base URL, empty to skip registration")
		identity = flag.String("identity", "868120145233604", "device IMEI")
		proto    = flag.String("protocol", "gt06", "gt06, h02 or teltonika")
		fixes    = flag.Int("fixes", 6, "number of moving fixes")
		interval = flag.Duration("interval", time.Second, "pause between frames")
	)
	flag.Parse()

	logger := log.New()
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	entry := logger.WithField("identity", *identity)

	if *httpAddr != "" {
		if err := register(*httpAddr, *identity); err != nil {
			entry.WithError(err).Warn("registration failed, continuing")
		}
	}

	conn, err := net.DialTimeout("tcp", *tcpAddr, 5*time.Second)
	if err != nil {
		entry.WithError(err).Fatal("dial failed")
	}
	defer conn.Close()
	go readReplies(conn, entry)

	frames, err := route(*proto, *identity, *fixes, time.Now().UTC())
	if err != nil {
		entry.WithError(err).Fatal("build route")
	}
	for i, f := range frames {
		if _, err := conn.Write(f); err != nil {
			entry.WithError(err).Fatal("write failed")
		}
		entry.WithFields(log.Fields{"frame": i, "bytes": len(f)}).Info("sent")
		time.Sleep(*interval)
	}
	// Leave time for the last acks and any queued command.
	time.Sleep(2 * time.Second)
}

// route builds the frames of a trip heading north at 40 km/h, followed by a
// stopped fix and, where the protocol has one, a heartbeat.
func route(proto, identity string, moving int, start time.Time) ([][]byte, error) {
	fix := protocol.Fix{
		Timestamp:  start,
		Latitude:   52.5200,
		Longitude:  13.4050,
		SpeedKmh:   40,
		Satellites: 9,
		GPSValid:   true,
	}
	var frames [][]byte
	var serial uint16 = 1

	switch proto {
	case "gt06":
		login, err := gt06.EncodeLogin(identity, serial)
		if err != nil {
			return nil, err
		}
		frames = append(frames, login)
	case "teltonika":
		frames = append(frames, teltonika.EncodeLogin(identity))
	case "h02":
	default:
		return nil, fmt.Errorf("unknown protocol %q", proto)
	}

	emit := func(f protocol.Fix) {
		serial++
		switch proto {
		case "gt06":
			frames = append(frames, gt06.EncodeLocation(f, serial))
		case "teltonika":
			frames = append(frames, teltonika.EncodeRecords(f))
		default:
			frames = append(frames, h02.EncodeLocation(identity, f))
		}
	}
	for i := 0; i < moving; i++ {
		emit(fix)
		fix.Timestamp = fix.Timestamp.Add(30 * time.Second)
		// 40 km/h for 30 s is about 0.003 degrees of latitude.
		fix.Latitude += 0.003
	}
	fix.SpeedKmh = 0
	emit(fix)

	serial++
	switch proto {
	case "gt06":
		frames = append(frames, gt06.EncodeHeartbeat(0x46, 4, 3, serial))
	case "h02":
		frames = append(frames, []byte(fmt.Sprintf("*HQ,%s,V3,4,80,C#", identity)))
	}
	return frames, nil
}

func readReplies(conn net.Conn, logger *log.Entry) {
	buf := make([]byte, 1024)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if err != io.EOF {
				logger.WithError(err).Debug("read stopped")
			}
			return
		}
		logger.WithField("data", fmt.Sprintf("% x", buf[:n])).Info("received")
	}
}

func register(baseURL, identity string) error {
	body, err := json.Marshal(map[string]any{
		"name":        "simulator " + identity,
		"uniqueId":    identity,
		"vehicleName": "Simulated van",
	})
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(baseURL+"/api/devices", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	fmt.Fprintf(os.Stderr, "registered %s\n", identity)
	return nil
}
