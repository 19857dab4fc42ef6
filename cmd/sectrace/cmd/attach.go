//go:build frida

/*
Copyright © 2026 sectrace authors

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/apex/log"
	"github.com/caarlos0/ctrlc"
	"github.com/fatih/color"
	"github.com/frida/frida-go/frida"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sectrace/sectrace/cmd/sectrace/cmd/types"
	"github.com/sectrace/sectrace/internal/utils"
	"github.com/sectrace/sectrace/pkg/host/replay"
	"github.com/sectrace/sectrace/pkg/tracer"
)

var (
	//go:embed scripts/stalker.js
	stalkerScriptData []byte
)

func init() {
	rootCmd.AddCommand(attachCmd)
	addTraceFlags(attachCmd)

	attachCmd.Flags().IntP("pid", "p", -1, "PID of process to attach to")
	attachCmd.Flags().StringP("name", "n", "", "Name of process to attach to")
	attachCmd.Flags().String("spawn", "", "File to spawn")
	attachCmd.Flags().StringArrayP("args", "a", []string{}, "File spawn arguments")
	attachCmd.Flags().StringP("udid", "u", "", "Device UniqueDeviceID to connect to")
	viper.BindPFlag("attach.pid", attachCmd.Flags().Lookup("pid"))
	viper.BindPFlag("attach.name", attachCmd.Flags().Lookup("name"))
	viper.BindPFlag("attach.spawn", attachCmd.Flags().Lookup("spawn"))
	viper.BindPFlag("attach.args", attachCmd.Flags().Lookup("args"))
	viper.BindPFlag("attach.udid", attachCmd.Flags().Lookup("udid"))
}

// attachCmd represents the attach command
var attachCmd = &cobra.Command{
	Use:           "attach",
	Short:         "Trace a live process with frida",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
		color.NoColor = !viper.GetBool("color")

		udid := viper.GetString("attach.udid")
		procName := viper.GetString("attach.name")
		procPID := viper.GetInt("attach.pid")
		spawnPath := viper.GetString("attach.spawn")
		spawnArgs := viper.GetStringSlice("attach.args")
		// verify flag args
		if procPID == -1 && len(procName) == 0 && len(spawnPath) == 0 {
			return fmt.Errorf("must specify --name, --pid or --spawn")
		} else if len(spawnPath) > 0 && (procPID != -1 || len(procName) > 0) {
			return errors.New("cannot specify --spawn process AND --name OR --pid")
		}

		target := spawnPath
		if target == "" {
			target = procName
		}
		defaultModule := ""
		if target != "" {
			defaultModule = utils.BaseName(target)
		}
		s, err := newSession(cmd, target, defaultModule)
		if err != nil {
			return err
		}
		defer s.Close()

		mem := replay.NewSnippets()
		s.Tracer.SetMemory(mem)

		mgr := frida.NewDeviceManager()
		devices, err := mgr.EnumerateDevices()
		if err != nil {
			return fmt.Errorf("failed to enumerate devices: %v", err)
		}
		if len(devices) == 0 {
			return fmt.Errorf("no devices found")
		}
		dev := devices[0]
		if len(udid) > 0 {
			dev, err = mgr.DeviceByID(udid)
			if err != nil {
				return fmt.Errorf("failed to get device by id %s: %v", udid, err)
			}
		}
		log.Infof("Chosen device: %s", dev.Name())

		var session *frida.Session
		if len(spawnPath) > 0 {
			log.Infof("Spawning process '%s'", spawnPath)
			opts := frida.NewSpawnOptions()
			argv := make([]string, len(spawnArgs)+1)
			argv[0] = spawnPath
			copy(argv[1:], spawnArgs)
			opts.SetArgv(argv)
			procPID, err = dev.Spawn(spawnPath, opts)
			if err != nil {
				return fmt.Errorf("error spawning '%s': %v", spawnPath, err)
			}
			session, err = dev.Attach(procPID, nil)
			if err != nil {
				return fmt.Errorf("failed to attach to spawned process with PID %d: %v", procPID, err)
			}
			defer session.Detach()
		} else {
			if procPID == -1 && len(procName) > 0 {
				processes, err := dev.EnumerateProcesses(frida.ScopeMinimal)
				if err != nil {
					return fmt.Errorf("error enumerating processes: %v", err)
				}
				found := false
				for _, proc := range processes {
					if proc.Name() == procName {
						procPID = proc.PID()
						found = true
						break
					}
				}
				if !found {
					return fmt.Errorf("process '%s' not found", procName)
				}
			}
			log.Infof("Attaching to PID %d", procPID)
			session, err = dev.Attach(procPID, nil)
			if err != nil {
				return fmt.Errorf("failed to attach to PID: %v", err)
			}
			defer session.Clean()
		}

		session.On("detached", func(reason frida.SessionDetachReason, crash *frida.Crash) {
			log.Warnf("session detached: reason='{%s}'", frida.SessionDetachReason(reason))
			if crash != nil {
				log.Errorf("session crash: %s %s", crash.Report(), crash.Summary())
			}
		})

		script, err := session.CreateScript(string(stalkerScriptData))
		if err != nil {
			return fmt.Errorf("error ocurred creating script: %v", err)
		}
		script.On("message", func(data string) {
			onTraceMessage(s.Tracer, mem, data)
		})
		if err := script.Load(); err != nil {
			return fmt.Errorf("error loading script: %v", err)
		}
		defer script.Unload()
		log.Info("Loaded script")

		if len(spawnPath) > 0 {
			if err := dev.Resume(procPID); err != nil {
				return fmt.Errorf("error resuming: %v", err)
			}
			log.Info("Resumed process")
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := ctrlc.Default.Run(ctx, func() error {
			if s.Watch != nil {
				for _, e := range s.Watch.All() {
					utils.Indent(log.WithFields(log.Fields{
						"dll":  e.DLL,
						"func": e.Func,
					}).Info, 2)("Hooking")
					script.ExportsCall("watch", e.DLL, e.Func, e.ParamCount)
					color.New(color.FgHiBlue).Printf("Watch %s: %s [%d]\n", e.DLL, e.Func, e.ParamCount)
				}
			}

			sc := bufio.NewScanner(os.Stdin)
			for sc.Scan() {
				fmt.Println(sc.Text())
			}

			return nil
		}); err != nil {
			if errors.As(err, &ctrlc.ErrorCtrlC{}) {
				log.Warn("Detaching Session...")
			} else {
				return err
			}
		}

		return nil
	},
}

// onTraceMessage routes one script message into the engine.
func onTraceMessage(t *tracer.Tracer, mem *replay.Snippets, data string) {
	msg, err := frida.ScriptMessageToMessage(data)
	if err != nil {
		log.Errorf("error parsing script message: %v", err)
		return
	}
	switch msg.Type {
	case frida.MessageTypeError:
		log.WithFields(log.Fields{
			"line":   msg.LineNumber,
			"column": msg.ColumnNumber,
		}).Errorf("Received '%s' - %v", msg.Type, msg.Description)
	case frida.MessageTypeSend:
		if !msg.IsPayloadMap {
			log.Debugf("Received '%s' - %v", msg.Type, msg.Payload)
			return
		}
		var p types.Payload
		if err := mapstructure.Decode(msg.Payload, &p); err != nil {
			log.Errorf("error decoding payload: %v", err)
			return
		}
		routePayload(t, mem, p)
	case frida.MessageTypeLog:
		log.Infof("Received '%s' - %v", msg.Type, msg.Payload)
	default:
		log.Errorf("Received: (unknown) %v", msg)
	}
}

func routePayload(t *tracer.Tracer, mem *replay.Snippets, p types.Payload) {
	addr := func(s string) uint64 {
		if s == "" {
			return 0
		}
		v, err := utils.ConvertStrToInt(s)
		if err != nil {
			return 0
		}
		return v
	}
	for k, v := range p.Mem {
		data, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			continue
		}
		mem.Put(addr(k), data)
	}
	switch p.Kind {
	case "module":
		mod := tracer.Module{
			Name: p.Name,
			Base: addr(p.Base),
			Size: p.Size,
		}
		for _, sec := range p.Sections {
			mod.Sections = append(mod.Sections, tracer.Section{Name: sec.Name, RVA: sec.RVA, Size: sec.Size})
		}
		for _, exp := range p.Exports {
			mod.Exports = append(mod.Exports, tracer.Export{Name: exp.Name, RVA: exp.RVA})
		}
		t.AddModule(mod)
	case "transfer":
		t.SaveTransitions(addr(p.From), addr(p.To))
	case "rdtsc":
		// logging and counter upkeep only; frida callouts cannot hand the
		// spoofed halves back synchronously
		t.RdtscExecuted(addr(p.IP), p.EAX, p.EDX)
	case "cpuid":
		t.CpuidExecuted(addr(p.IP), p.Leaf)
	case "call":
		vals := make(argValues, len(p.Args))
		for i, a := range p.Args {
			vals[i] = addr(a)
		}
		t.WatchHit(addr(p.IP), fmt.Sprintf("%s.%s", p.DLL, p.Func), len(vals), vals)
	case "log":
		log.Info(p.Name)
	default:
		log.Debugf("unknown payload kind %q", p.Kind)
	}
}

// argValues adapts decoded argument values to the tracer's ArgSource.
type argValues []uint64

func (a argValues) Arg(i int) uint64 {
	if i < 0 || i >= len(a) {
		return 0
	}
	return a[i]
}
