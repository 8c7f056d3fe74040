// Package renderhandlers maps adaptor actions onto MAXScript for the
// supported renderers. All renderers share the default scanline behavior and
// override only how the renderer itself is selected.
package renderhandlers

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/openjd-adaptors/max-openjd/client/maxscript"
	"github.com/openjd-adaptors/max-openjd/frames"
)

// Params is the parameter map of one action.
type Params map[string]interface{}

func (p Params) str(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

func (p Params) num(key string) (int, bool) {
	switch v := p[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

// ActionFunc performs one action.
type ActionFunc func(Params) error

// Handler executes the render actions for one renderer.
type Handler struct {
	eng maxscript.Engine
	out io.Writer

	// checkRenderer switches the host to this handler's renderer when the
	// scene has something else active.
	checkRenderer func() error

	camera       string
	outputDir    string
	outputName   string
	outputFormat string
}

// Get returns the handler for a renderer name, defaulting to scanline, the
// same dispatch the client applies to the renderer init action.
func Get(renderer string, eng maxscript.Engine, out io.Writer) *Handler {
	switch {
	case renderer == "ART_Renderer":
		return newSwitchingHandler(eng, out, "ART_Renderer", "ART_Renderer()")
	case renderer == "Corona":
		return newSwitchingHandler(eng, out, "Corona", "Corona()")
	case strings.HasPrefix(renderer, "V_Ray_GPU_6"):
		return newVrayHandler(eng, out, true)
	case strings.HasPrefix(renderer, "V_Ray_6"):
		return newVrayHandler(eng, out, false)
	default:
		return newSwitchingHandler(eng, out, "Default_Scanline_Renderer", "Default_Scanline_Renderer()")
	}
}

// newSwitchingHandler builds a handler that switches to the named renderer
// class when it is not already active.
func newSwitchingHandler(eng maxscript.Engine, out io.Writer, name, constructor string) *Handler {
	h := &Handler{eng: eng, out: out}
	h.checkRenderer = func() error {
		script := fmt.Sprintf(
			"if (filterString (renderers.current as string) \":\")[1] != \"%s\" then renderers.current = %s",
			name, constructor)
		_, err := eng.Execute(script)
		return err
	}
	return h
}

// newVrayHandler picks the newest installed V-Ray (or V-Ray GPU) renderer
// class instead of naming a fixed version.
func newVrayHandler(eng maxscript.Engine, out io.Writer, gpu bool) *Handler {
	h := &Handler{eng: eng, out: out}
	h.checkRenderer = func() error {
		gpuFilter := "and (findString cls \"GPU\") == undefined"
		if gpu {
			gpuFilter = "and (findString cls \"GPU\") != undefined"
		}
		script := fmt.Sprintf(`vrayClass = undefined
for c in rendererClass.classes do (
	cls = c as string
	if (findString cls "V_Ray") != undefined %s then vrayClass = c
)
if vrayClass == undefined then print "Error: unable to find V-Ray plugin"
else renderers.current = vrayClass()`, gpuFilter)
		output, err := eng.Execute(script)
		if err != nil {
			return err
		}
		if strings.Contains(output, "unable to find V-Ray plugin") {
			return errors.New("unable to find V-Ray plugin")
		}
		return nil
	}
	return h
}

// Actions returns the action table the client dispatches on.
func (h *Handler) Actions() map[string]ActionFunc {
	return map[string]ActionFunc{
		"start_render":       h.StartRender,
		"scene_file":         h.SetSceneFile,
		"state_set":          h.SetStateSet,
		"camera":             h.SetCamera,
		"output_file_path":   h.SetOutputFilePath,
		"output_file_name":   h.SetOutputFileName,
		"output_file_format": h.SetOutputFileFormat,
		"image_width":        h.SetImageWidth,
		"image_height":       h.SetImageHeight,
	}
}

// SetSceneFile opens the scene in quiet mode so missing-asset popups cannot
// stall the session.
func (h *Handler) SetSceneFile(p Params) error {
	path := p.str("scene_file")
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(h.out, "Error: The scene file '%s' does not exist\n", path)
		return errors.Errorf("the scene file '%s' does not exist", path)
	}
	log.WithFields(log.Fields{"scene": path}).Debug("Opening max scene")
	script := fmt.Sprintf("SetQuietMode true\nloadMaxFile @\"%s\" quiet:true", path)
	if _, err := h.eng.Execute(script); err != nil {
		fmt.Fprintf(h.out, "Error: while opening '%s'\n", path)
		return errors.Wrapf(err, "opening '%s'", path)
	}
	return nil
}

// SetStateSet activates the named state set and then makes sure the
// renderer matches this handler.
func (h *Handler) SetStateSet(p Params) error {
	name := p.str("state_set")
	if name == "" {
		return nil
	}
	// State sets are only reachable from MAXScript through the dotNet
	// plugin object. Indexing starts at -1 and the trailing default
	// "Objects" state is skipped.
	script := fmt.Sprintf(`stateSetsDotNetObject = dotNetObject "Autodesk.Max.StateSets.Plugin"
stateSets = stateSetsDotNetObject.Instance
masterState = stateSets.EntityManager.RootEntity.MasterStateSet
needState = undefined
for i = -1 to masterState.Children.count - 2 do (
	if masterState.Children.Item[i].Name == "%s" then needState = masterState.Children.Item[i]
)
if needState == undefined then print "Error: state set not found"
else masterState.CurrentState = #(needState)`, name)
	output, err := h.eng.Execute(script)
	if err != nil {
		return errors.Wrapf(err, "activating state set '%s'", name)
	}
	if strings.Contains(output, "state set not found") {
		fmt.Fprintf(h.out, "Error: The specified state set, '%s', does not exist.\n", name)
		return errors.Errorf("the specified state set, '%s', does not exist", name)
	}
	return h.checkRenderer()
}

// SetCamera validates and remembers the camera from the init data.
func (h *Handler) SetCamera(p Params) error {
	name := p.str("camera")
	if name == "" {
		fmt.Fprintln(h.out, "No camera specified in init data")
		return nil
	}
	if err := h.cameraExists(name); err != nil {
		return err
	}
	h.camera = name
	return nil
}

func (h *Handler) cameraExists(name string) error {
	output, err := h.eng.Execute(fmt.Sprintf("getNodeByName \"%s\"", name))
	if err != nil {
		return errors.Wrapf(err, "looking up camera '%s'", name)
	}
	if strings.Contains(output, "undefined") {
		fmt.Fprintf(h.out, "Error: The specified camera, %s, does not exist.\n", name)
		return errors.Errorf("the specified camera, %s, does not exist", name)
	}
	return nil
}

func (h *Handler) SetOutputFilePath(p Params) error {
	if dir := p.str("output_file_path"); dir != "" {
		h.outputDir = dir
	}
	return nil
}

func (h *Handler) SetOutputFileName(p Params) error {
	if name := p.str("output_file_name"); name != "" {
		h.outputName = name
	}
	return nil
}

func (h *Handler) SetOutputFileFormat(p Params) error {
	if format := p.str("output_file_format"); format != "" {
		h.outputFormat = format
	}
	return nil
}

func (h *Handler) SetImageWidth(p Params) error {
	if w, ok := p.num("image_width"); ok {
		_, err := h.eng.Execute(fmt.Sprintf("renderWidth = %d", w))
		return err
	}
	return nil
}

func (h *Handler) SetImageHeight(p Params) error {
	if height, ok := p.num("image_height"); ok {
		_, err := h.eng.Execute(fmt.Sprintf("renderHeight = %d", height))
		return err
	}
	return nil
}

// StartRender renders one frame to the configured output path and prints
// the completion line the adaptor watches for.
func (h *Handler) StartRender(p Params) error {
	frame, ok := p.num("frame")
	if !ok {
		fmt.Fprintln(h.out, "Error: MaxClient: start_render called without a frame number.")
		return errors.New("start_render called without a frame number")
	}
	if h.outputDir == "" || h.outputName == "" || h.outputFormat == "" {
		fmt.Fprintln(h.out, "Error: MaxClient: start_render called without a valid output path.")
		return errors.New("start_render called without a valid output path: output directory, name or format is missing")
	}

	camera := h.camera
	outputName := ""
	if runCamera := p.str("camera"); runCamera != "" {
		// A camera in the run data means every camera renders; tag the
		// output file with the camera name so frames do not collide.
		if err := h.cameraExists(runCamera); err != nil {
			return err
		}
		camera = runCamera
		outputName = h.outputName + "_" + runCamera
	}
	if camera == "" {
		fmt.Fprintln(h.out, "Error: MaxClient: start_render called without a camera.")
		return errors.New("start_render called without a camera")
	}
	if outputName == "" {
		outputName = h.outputName
	}
	outputName = frames.PadName(outputName, frame)
	outputPath := filepath.Join(h.outputDir, outputName+h.outputFormat)

	if err := os.MkdirAll(h.outputDir, 0755); err != nil {
		return errors.Wrap(err, "creating output directory")
	}
	if err := os.Remove(outputPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing stale output file")
	}

	script := fmt.Sprintf(`rendTimeType = 1
sliderTime = %d
render camera:(getNodeByName "%s") outputFile:@"%s" vfb:false`, frame, camera, outputPath)
	if _, err := h.eng.Execute(script); err != nil {
		return errors.Wrapf(err, "rendering frame %d", frame)
	}

	fmt.Fprintf(h.out, "MaxClient: Finished Rendering Frame %d\n", frame)
	return nil
}
