package lua

import (
	"context"
	"fmt"
	"time"

	"github.com/aarzilli/golua/lua"
	"github.com/sirupsen/logrus"
	"github.com/srg/vwifi/internal/hoststack"
	"github.com/srg/vwifi/internal/wifi"
)

// DefaultWaitTimeout bounds how long a binding waits for a completion.
const DefaultWaitTimeout = 10 * time.Second

// WiFiAPI binds a device and its host stack to the global Lua table wifi.
//
// Requests block until their completion notification arrives, so a script
// reads top to bottom:
//
//	local scan = wifi.scan()
//	local status, reason = wifi.connect("WiFi")
//	wifi.disconnect(3)
type WiFiAPI struct {
	Engine *Engine

	dev     *wifi.Device
	rec     *hoststack.Recorder
	logger  *logrus.Logger
	ctx     context.Context
	timeout time.Duration
}

// NewWiFiAPI creates an engine with the wifi table registered. ctx bounds
// every blocking binding.
func NewWiFiAPI(ctx context.Context, dev *wifi.Device, rec *hoststack.Recorder, logger *logrus.Logger) *WiFiAPI {
	if logger == nil {
		logger = logrus.New()
	}
	api := &WiFiAPI{
		Engine:  NewEngine(logger),
		dev:     dev,
		rec:     rec,
		logger:  logger,
		ctx:     ctx,
		timeout: DefaultWaitTimeout,
	}
	api.register()
	return api
}

// SetWaitTimeout changes how long bindings wait for completions.
func (api *WiFiAPI) SetWaitTimeout(d time.Duration) {
	api.timeout = d
}

// Close releases the Lua state. The device is owned by the caller.
func (api *WiFiAPI) Close() {
	api.Engine.Close()
}

// raise aborts the current binding with a Lua error.
func raise(format string, args ...any) {
	panic(fmt.Errorf(format, args...))
}

func (api *WiFiAPI) register() {
	_ = api.Engine.Do(func(L *lua.State) {
		L.NewTable()

		api.fn(L, "scan", api.scan)
		api.fn(L, "bss", api.bss)
		api.fn(L, "connect", api.connect)
		api.fn(L, "disconnect", api.disconnect)
		api.fn(L, "interfaces", api.interfaces)
		api.fn(L, "add_interface", api.addInterface)
		api.fn(L, "change_interface", api.changeInterface)
		api.fn(L, "delete_interface", api.deleteInterface)
		api.fn(L, "start_ap", api.startAP)
		api.fn(L, "stop_ap", api.stopAP)
		api.fn(L, "transmit", api.transmit)
		api.fn(L, "capabilities", api.capabilities)
		api.fn(L, "sleep", api.sleep)

		L.SetGlobal("wifi")
	})
}

// fn stores a wrapped binding in the table on top of the stack.
func (api *WiFiAPI) fn(L *lua.State, name string, f lua.LuaGoFunction) {
	L.PushGoFunction(api.Engine.Wrap("wifi."+name, f))
	L.SetField(-2, name)
}

func (api *WiFiAPI) await(match func(hoststack.Event) bool) hoststack.Event {
	ctx, cancel := context.WithTimeout(api.ctx, api.timeout)
	defer cancel()

	ev, err := api.rec.WaitFor(ctx, match)
	if err != nil {
		raise("no completion: %v", err)
	}
	return ev
}

// iface resolves an optional interface name argument; nil means primary.
func (api *WiFiAPI) iface(L *lua.State, idx int) *wifi.Interface {
	if L.IsNoneOrNil(idx) {
		return api.dev.Primary()
	}
	name := L.ToString(idx)
	vif, ok := api.dev.Interface(name)
	if !ok {
		raise("no interface %q", name)
	}
	return vif
}

func optString(L *lua.State, idx int, def string) string {
	if L.IsNoneOrNil(idx) {
		return def
	}
	return L.ToString(idx)
}

func optInt(L *lua.State, idx int, def int) int {
	if L.IsNoneOrNil(idx) {
		return def
	}
	if !L.IsNumber(idx) {
		raise("argument #%d must be a number", idx)
	}
	return int(L.ToInteger(idx))
}

func setString(L *lua.State, key, value string) {
	L.PushString(value)
	L.SetField(-2, key)
}

func setInt(L *lua.State, key string, value int64) {
	L.PushInteger(value)
	L.SetField(-2, key)
}

func setBool(L *lua.State, key string, value bool) {
	L.PushBoolean(value)
	L.SetField(-2, key)
}

// wifi.scan(ssid, ...) -> {id=, aborted=}
func (api *WiFiAPI) scan(L *lua.State) int {
	var ssids []string
	for i := 1; i <= L.GetTop(); i++ {
		ssids = append(ssids, L.ToString(i))
	}

	req := wifi.NewScanRequest(ssids...)
	if err := api.dev.Scan(api.ctx, req); err != nil {
		raise("%v", err)
	}
	id := req.ID.String()
	ev := api.await(func(e hoststack.Event) bool {
		return e.Type == hoststack.EventScanDone && e.ScanID == id
	})

	L.NewTable()
	setString(L, "id", id)
	setBool(L, "aborted", ev.Aborted)
	return 1
}

// wifi.bss() -> array of {bssid=, ssid=, freq=, signal=, refs=}
func (api *WiFiAPI) bss(L *lua.State) int {
	L.NewTable()
	for i, entry := range api.rec.BSSs() {
		bss, ssid, _ := entry.Snapshot()
		L.NewTable()
		setString(L, "bssid", bss.BSSID.String())
		setString(L, "ssid", ssid)
		setInt(L, "freq", int64(bss.Channel.CenterFreq))
		setInt(L, "signal", int64(bss.Signal))
		setInt(L, "refs", int64(entry.Refs()))
		L.RawSeti(-2, i+1)
	}
	return 1
}

// wifi.connect(ssid [, iface]) -> status, reason|nil
func (api *WiFiAPI) connect(L *lua.State) int {
	if !L.IsString(1) {
		raise("ssid must be a string")
	}
	ssid := L.ToString(1)
	vif := api.iface(L, 2)

	if err := api.dev.Connect(api.ctx, vif, wifi.ConnectParams{SSID: []byte(ssid)}); err != nil {
		raise("%v", err)
	}
	ev := api.await(hoststack.OnInterface(hoststack.EventConnectResult, vif.Name()))

	L.PushString(ev.Status)
	if ev.Reason == "" {
		L.PushNil()
	} else {
		L.PushString(ev.Reason)
	}
	return 2
}

// wifi.disconnect([reason [, iface]]) -> reason, locally_generated
func (api *WiFiAPI) disconnect(L *lua.State) int {
	reason := optInt(L, 1, 3)
	if reason < 0 || reason > 0xffff {
		raise("reason %d out of range", reason)
	}
	vif := api.iface(L, 2)

	if err := api.dev.Disconnect(api.ctx, vif, uint16(reason)); err != nil {
		raise("%v", err)
	}
	ev := api.await(hoststack.OnInterface(hoststack.EventDisconnected, vif.Name()))

	L.PushInteger(int64(ev.Code))
	L.PushBoolean(ev.Local)
	return 2
}

// wifi.interfaces() -> array of {name=, index=, type=, address=, primary=}
func (api *WiFiAPI) interfaces(L *lua.State) int {
	primary := api.dev.Primary()

	L.NewTable()
	for i, vif := range api.dev.Interfaces() {
		L.NewTable()
		setString(L, "name", vif.Name())
		setInt(L, "index", int64(vif.Index()))
		setString(L, "type", vif.Type().String())
		setString(L, "address", vif.HardwareAddr().String())
		setBool(L, "primary", vif == primary)
		L.RawSeti(-2, i+1)
	}
	return 1
}

// wifi.add_interface(type [, name]) -> name
func (api *WiFiAPI) addInterface(L *lua.State) int {
	typ, err := wifi.ParseIfType(optString(L, 1, "station"))
	if err != nil {
		raise("%v", err)
	}
	vif, err := api.dev.AddInterface(api.ctx, typ, optString(L, 2, ""))
	if err != nil {
		raise("%v", err)
	}
	L.PushString(vif.Name())
	return 1
}

// wifi.change_interface(name, type)
func (api *WiFiAPI) changeInterface(L *lua.State) int {
	vif := api.iface(L, 1)
	typ, err := wifi.ParseIfType(optString(L, 2, ""))
	if err != nil {
		raise("%v", err)
	}
	if err := api.dev.ChangeInterface(api.ctx, vif, typ); err != nil {
		raise("%v", err)
	}
	return 0
}

// wifi.delete_interface(name)
func (api *WiFiAPI) deleteInterface(L *lua.State) int {
	if L.IsNoneOrNil(1) {
		raise("interface name required")
	}
	if err := api.dev.DeleteInterface(api.ctx, api.iface(L, 1)); err != nil {
		raise("%v", err)
	}
	return 0
}

// wifi.start_ap({iface=, ssid=, channel=, beacon_interval=, dtim_period=})
func (api *WiFiAPI) startAP(L *lua.State) int {
	var params wifi.APParams
	vif := api.dev.Primary()

	if L.IsTable(1) {
		field := func(key string) bool {
			L.GetField(1, key)
			if L.IsNil(-1) {
				L.Pop(1)
				return false
			}
			return true
		}
		if field("iface") {
			name := L.ToString(-1)
			L.Pop(1)
			var ok bool
			if vif, ok = api.dev.Interface(name); !ok {
				raise("no interface %q", name)
			}
		}
		if field("ssid") {
			params.SSID = L.ToString(-1)
			L.Pop(1)
		}
		if field("channel") {
			params.Channel = int(L.ToInteger(-1))
			L.Pop(1)
		}
		if field("beacon_interval") {
			params.BeaconInterval = uint16(L.ToInteger(-1))
			L.Pop(1)
		}
		if field("dtim_period") {
			params.DTIMPeriod = uint8(L.ToInteger(-1))
			L.Pop(1)
		}
	}
	if params.SSID == "" {
		params.SSID = wifi.DummySSID
	}

	if err := api.dev.StartAP(api.ctx, vif, params); err != nil {
		raise("%v", err)
	}
	ev := api.await(func(e hoststack.Event) bool {
		return e.Type == hoststack.EventAPStarted && e.Iface == vif.Name()
	})

	L.NewTable()
	setString(L, "iface", ev.Iface)
	setString(L, "ssid", ev.SSID)
	setInt(L, "channel", int64(ev.Channel))
	return 1
}

// wifi.stop_ap([iface])
func (api *WiFiAPI) stopAP(L *lua.State) int {
	api.dev.StopAP(api.iface(L, 1))
	return 0
}

// wifi.transmit(frame [, iface]) -> {packets=, bytes=, tap_dropped=}
func (api *WiFiAPI) transmit(L *lua.State) int {
	if !L.IsString(1) {
		raise("frame must be a string")
	}
	frame := []byte(L.ToString(1))
	vif := api.iface(L, 2)

	if vif.Transmit(frame) != wifi.TxOK {
		raise("transmit on %s refused", vif.Name())
	}
	stats := vif.TxStats()

	L.NewTable()
	setInt(L, "packets", int64(stats.Packets))
	setInt(L, "bytes", int64(stats.Bytes))
	setInt(L, "tap_dropped", int64(stats.TapDropped))
	return 1
}

// wifi.capabilities() -> {phy_name=, max_scan_ssids=, max_interfaces=, modes={}}
func (api *WiFiAPI) capabilities(L *lua.State) int {
	caps := api.dev.Capabilities()

	L.NewTable()
	setString(L, "phy_name", caps.PhyName)
	setInt(L, "max_scan_ssids", int64(caps.MaxScanSSIDs))
	setInt(L, "max_interfaces", int64(caps.MaxInterfaces))
	L.NewTable()
	for i, mode := range caps.InterfaceModes {
		L.PushString(mode)
		L.RawSeti(-2, i+1)
	}
	L.SetField(-2, "modes")
	return 1
}

// wifi.sleep(ms)
func (api *WiFiAPI) sleep(L *lua.State) int {
	ms := optInt(L, 1, 0)
	if ms <= 0 {
		return 0
	}

	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-api.ctx.Done():
		raise("interrupted: %v", api.ctx.Err())
	}
	return 0
}
