package printer

import (
	"fmt"
	"path"
	"strconv"
	"sync/atomic"
)

// command is the body shared by the simple print-domain operations.
type command struct {
	SequenceID string `json:"sequence_id"`
	Command    string `json:"command"`
	Param      string `json:"param"`
	UserID     string `json:"user_id,omitempty"`
}

// projectCommand starts a print from an uploaded 3MF project archive. The
// boolean fields must always be present on the wire, so no omitempty here.
type projectCommand struct {
	SequenceID    string `json:"sequence_id"`
	Command       string `json:"command"`
	Param         string `json:"param"`
	ProjectID     string `json:"project_id"`
	ProfileID     string `json:"profile_id"`
	TaskID        string `json:"task_id"`
	SubtaskID     string `json:"subtask_id"`
	SubtaskName   string `json:"subtask_name"`
	File          string `json:"file"`
	URL           string `json:"url"`
	MD5           string `json:"md5"`
	Timelapse     bool   `json:"timelapse"`
	BedType       string `json:"bed_type"`
	BedLevelling  bool   `json:"bed_levelling"`
	FlowCali      bool   `json:"flow_cali"`
	VibrationCali bool   `json:"vibration_cali"`
	LayerInspect  bool   `json:"layer_inspect"`
	AMSMapping    []int  `json:"ams_mapping"`
	UseAMS        bool   `json:"use_ams"`
}

// ProjectOptions tune a project_file command. Zero value is not useful;
// obtain one through the functional options on PrintProject.
type ProjectOptions struct {
	PlateID              int
	TaskName             string
	Timelapse            bool
	BedType              string
	BedLevelling         bool
	FlowCalibration      bool
	VibrationCalibration bool
	LayerInspect         bool
}

// ProjectOption mutates the defaults of a project print.
type ProjectOption func(*ProjectOptions)

func WithPlate(id int) ProjectOption {
	return func(o *ProjectOptions) { o.PlateID = id }
}

func WithTaskName(name string) ProjectOption {
	return func(o *ProjectOptions) { o.TaskName = name }
}

func WithTimelapse(enabled bool) ProjectOption {
	return func(o *ProjectOptions) { o.Timelapse = enabled }
}

func WithBedType(bedType string) ProjectOption {
	return func(o *ProjectOptions) { o.BedType = bedType }
}

func WithBedLevelling(enabled bool) ProjectOption {
	return func(o *ProjectOptions) { o.BedLevelling = enabled }
}

func WithFlowCalibration(enabled bool) ProjectOption {
	return func(o *ProjectOptions) { o.FlowCalibration = enabled }
}

func WithVibrationCalibration(enabled bool) ProjectOption {
	return func(o *ProjectOptions) { o.VibrationCalibration = enabled }
}

func WithLayerInspect(enabled bool) ProjectOption {
	return func(o *ProjectOptions) { o.LayerInspect = enabled }
}

// CommandBuilder produces outbound commands carrying strictly increasing
// sequence ids. Ids are unique per session and advisory only: the device does
// not correlate replies back to them.
type CommandBuilder struct {
	seq atomic.Uint64
}

func (b *CommandBuilder) nextSequenceID() string {
	return strconv.FormatUint(b.seq.Add(1)-1, 10)
}

// RawGcode runs a single line of G-code on the device.
func (b *CommandBuilder) RawGcode(gcode string) Request {
	return Request{Print: command{
		SequenceID: b.nextSequenceID(),
		Command:    "gcode_line",
		Param:      gcode,
		UserID:     "0",
	}}
}

// PrintGcodeFile starts printing a plain G-code file already on the device.
func (b *CommandBuilder) PrintGcodeFile(url string) Request {
	return Request{Print: command{
		SequenceID: b.nextSequenceID(),
		Command:    "gcode_file",
		Param:      url,
	}}
}

// Stop aborts the current print.
func (b *CommandBuilder) Stop() Request {
	return b.plain("stop")
}

// Pause pauses the current print.
func (b *CommandBuilder) Pause() Request {
	return b.plain("pause")
}

// Resume resumes a paused print.
func (b *CommandBuilder) Resume() Request {
	return b.plain("resume")
}

func (b *CommandBuilder) plain(cmd string) Request {
	return Request{Print: command{
		SequenceID: b.nextSequenceID(),
		Command:    cmd,
		Param:      "",
	}}
}

// PrintProject starts a print from a 3MF project archive previously uploaded
// to the device. amsMapping lists the filament slot used for each material
// reference; an empty mapping means the AMS is not in use. The param field is
// fixed by the project archive layout: plate N's toolpath always lives at
// Metadata/plate_N.gcode.
func (b *CommandBuilder) PrintProject(url string, amsMapping []int, opts ...ProjectOption) Request {
	o := ProjectOptions{
		PlateID:              1,
		Timelapse:            true,
		BedType:              "auto",
		BedLevelling:         true,
		FlowCalibration:      true,
		VibrationCalibration: true,
		LayerInspect:         true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.TaskName == "" {
		o.TaskName = path.Base(url)
	}
	if amsMapping == nil {
		amsMapping = []int{}
	}
	return Request{Print: projectCommand{
		SequenceID:    b.nextSequenceID(),
		Command:       "project_file",
		Param:         fmt.Sprintf("Metadata/plate_%d.gcode", o.PlateID),
		ProjectID:     "0",
		ProfileID:     "0",
		TaskID:        "0",
		SubtaskID:     "0",
		SubtaskName:   o.TaskName,
		File:          "",
		URL:           url,
		MD5:           "",
		Timelapse:     o.Timelapse,
		BedType:       o.BedType,
		BedLevelling:  o.BedLevelling,
		FlowCali:      o.FlowCalibration,
		VibrationCali: o.VibrationCalibration,
		LayerInspect:  o.LayerInspect,
		AMSMapping:    amsMapping,
		UseAMS:        len(amsMapping) > 0,
	}}
}
