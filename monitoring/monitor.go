// Package monitoring turns a running vehicle system into a small HTTP
// server for external inspection: tasks, entities, inbox levels, vehicle
// state, process resources, and CPU profiles.
package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	// Enable profiling.
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/seaverlab/tethys/bus"
	"github.com/seaverlab/tethys/monitoring/web"
	"github.com/seaverlab/tethys/msgs"
	"github.com/seaverlab/tethys/tasks"
)

// vehicleStateSource is implemented by the vehicle supervisor.
type vehicleStateSource interface {
	VehicleStateSnapshot() msgs.VehicleState
}

// Monitor can turn a vehicle system into a server and allows external
// monitoring of the runtime.
type Monitor struct {
	portNumber int

	bus      *bus.Bus
	entities *tasks.EntityRegistry
	vehicle  vehicleStateSource

	tasksLock sync.Mutex
	tasks     []tasks.Task
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterBus registers the bus whose clients are inspected.
func (m *Monitor) RegisterBus(b *bus.Bus) {
	m.bus = b
}

// RegisterEntities registers the entity registry.
func (m *Monitor) RegisterEntities(r *tasks.EntityRegistry) {
	m.entities = r
}

// RegisterVehicle registers the vehicle state source.
func (m *Monitor) RegisterVehicle(v vehicleStateSource) {
	m.vehicle = v
}

// RegisterTask registers a task to be monitored.
func (m *Monitor) RegisterTask(t tasks.Task) {
	m.tasksLock.Lock()
	defer m.tasksLock.Unlock()

	m.tasks = append(m.tasks, t)
}

// StartServer starts the monitor as a web server.
func (m *Monitor) StartServer() {
	r := mux.NewRouter()

	fs := web.GetAssets()
	fServer := http.FileServer(fs)
	r.HandleFunc("/api/list_tasks", m.listTasks)
	r.HandleFunc("/api/task/{name}", m.listTaskDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/entities", m.listEntities)
	r.HandleFunc("/api/inboxes", m.listInboxes)
	r.HandleFunc("/api/vehicle", m.vehicleState)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/").Handler(fServer)
	http.Handle("/", r)

	actualPort := ":0"
	if m.portNumber >= 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	fmt.Fprintf(os.Stderr,
		"Monitoring vehicle with http://localhost:%d\n",
		listener.Addr().(*net.TCPAddr).Port)

	go func() {
		err = http.Serve(listener, nil)
		dieOnErr(err)
	}()
}

// OpenDashboard opens the dashboard in the default browser.
func (m *Monitor) OpenDashboard(port int) {
	err := browser.OpenURL("http://localhost:" + strconv.Itoa(port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot open dashboard: %s\n", err)
	}
}

func (m *Monitor) listTasks(w http.ResponseWriter, _ *http.Request) {
	m.tasksLock.Lock()
	defer m.tasksLock.Unlock()

	fmt.Fprint(w, "[")
	for i, t := range m.tasks {
		if i > 0 {
			fmt.Fprint(w, ",")
		}

		fmt.Fprintf(w, "%q", t.Name())
	}
	fmt.Fprint(w, "]")
}

func (m *Monitor) listTaskDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	task := m.findTaskOr404(w, name)
	if task == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(task)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type fieldReq struct {
	TaskName  string `json:"task_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	jsonString := mux.Vars(r)["json"]
	req := fieldReq{}

	err := json.Unmarshal([]byte(jsonString), &req)
	if err != nil {
		dieOnErr(err)
	}

	fields := strings.Split(req.FieldName, ".")

	task := m.findTaskOr404(w, req.TaskName)
	if task == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(task)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(fields)
	dieOnErr(err)

	err = serializer.Serialize(w)
	dieOnErr(err)
}

func (m *Monitor) findTaskOr404(w http.ResponseWriter, name string) tasks.Task {
	m.tasksLock.Lock()
	defer m.tasksLock.Unlock()

	for _, t := range m.tasks {
		if t.Name() == name {
			return t
		}
	}

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("Task not found"))
	dieOnErr(err)

	return nil
}

type entityRsp struct {
	ID          uint8  `json:"id"`
	Name        string `json:"name"`
	Task        string `json:"task"`
	State       string `json:"state"`
	Description string `json:"description"`
}

func (m *Monitor) listEntities(w http.ResponseWriter, _ *http.Request) {
	if m.entities == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var rsp []entityRsp
	for _, e := range m.entities.Snapshot() {
		rsp = append(rsp, entityRsp{
			ID:          e.ID,
			Name:        e.Name,
			Task:        e.Task,
			State:       e.State.String(),
			Description: e.Description,
		})
	}

	bytes, err := json.Marshal(rsp)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) vehicleState(w http.ResponseWriter, _ *http.Request) {
	if m.vehicle == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	vs := m.vehicle.VehicleStateSnapshot()

	rsp := struct {
		OpMode       string `json:"op_mode"`
		ManeuverType string `json:"maneuver_type"`
		ManeuverETA  uint16 `json:"maneuver_eta"`
		ControlLoops uint32 `json:"control_loops"`
		ErrorCount   uint8  `json:"error_count"`
		ErrorEnts    string `json:"error_ents"`
		LastError    string `json:"last_error"`
	}{
		OpMode:       vs.OpMode.String(),
		ManeuverType: msgs.AbbrevFromID(vs.ManeuverType),
		ManeuverETA:  vs.ManeuverETA,
		ControlLoops: vs.ControlLoops,
		ErrorCount:   vs.ErrorCount,
		ErrorEnts:    vs.ErrorEnts,
		LastError:    vs.LastError,
	}

	bytes, err := json.Marshal(rsp)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

// listInboxes is the hang detector: inbox fill levels sorted by level or
// percent, with limit/offset paging.
func (m *Monitor) listInboxes(w http.ResponseWriter, r *http.Request) {
	sortMethod, limit, offset, err := inboxesParseParams(r)
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	clients := m.sortAndSelectClients(sortMethod, limit, offset)

	fmt.Fprint(w, "[")
	for i, c := range clients {
		if i > 0 {
			fmt.Fprint(w, ",")
		}

		fmt.Fprintf(w,
			"{\"inbox\":%q,\"level\":%d,\"cap\":%d,\"overflows\":%d}",
			c.Name(), c.Pending(), c.Capacity(), c.Overflows())
	}
	fmt.Fprint(w, "]")
}

func inboxesParseParams(r *http.Request) (sort string, limit, offset int, err error) {
	sortMethod := r.URL.Query().Get("sort")
	if sortMethod == "" {
		sortMethod = "percent"
	}
	if sortMethod != "level" && sortMethod != "percent" {
		errStr := fmt.Sprintf(
			"Invalid sort method: %s. Allowed values are `level` and `percent`",
			sortMethod)
		return "", 0, 0, errors.New(errStr)
	}

	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		limitStr = "0"
	}
	limitNumber, err := strconv.Atoi(limitStr)
	if err != nil {
		return sortMethod, 0, 0, err
	}

	offsetStr := r.URL.Query().Get("offset")
	if offsetStr == "" {
		offsetStr = "0"
	}
	offsetNumber, err := strconv.Atoi(offsetStr)
	if err != nil {
		return sortMethod, limitNumber, 0, err
	}

	return sortMethod, limitNumber, offsetNumber, nil
}

func clientPercent(c *bus.Client) float64 {
	return float64(c.Pending()) / float64(c.Capacity())
}

func (m *Monitor) sortAndSelectClients(
	sortMethod string,
	limit, offset int,
) []*bus.Client {
	if m.bus == nil {
		return nil
	}

	clients := m.bus.Clients()

	if sortMethod == "level" {
		sort.Slice(clients, func(i, j int) bool {
			if clients[i].Pending() != clients[j].Pending() {
				return clients[i].Pending() > clients[j].Pending()
			}
			return clientPercent(clients[i]) > clientPercent(clients[j])
		})
	} else {
		sort.Slice(clients, func(i, j int) bool {
			pi := clientPercent(clients[i])
			pj := clientPercent(clients[j])
			if pi != pj {
				return pi > pj
			}
			return clients[i].Pending() > clients[j].Pending()
		})
	}

	if offset > len(clients) {
		offset = len(clients)
	}
	clients = clients[offset:]

	if limit > 0 && limit < len(clients) {
		clients = clients[:limit]
	}

	return clients
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	proc, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := proc.CPUPercent()
	dieOnErr(err)

	memorySize, err := proc.MemoryInfo()
	dieOnErr(err)

	rsp := resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	}

	bytes, err := json.Marshal(rsp)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	bytes, err := json.Marshal(prof)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
