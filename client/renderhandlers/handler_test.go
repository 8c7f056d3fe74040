package renderhandlers

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openjd-adaptors/max-openjd/client/maxscript"
)

func newTestHandler(t *testing.T) (*Handler, *maxscript.FakeEngine, *bytes.Buffer) {
	t.Helper()
	eng := maxscript.NewFakeEngine()
	eng.Respond("getNodeByName", "$Physical_Camera:PhysCamera001")
	out := &bytes.Buffer{}
	return Get("Default_Scanline_Renderer", eng, out), eng, out
}

func configureOutput(t *testing.T, h *Handler) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "renders")
	for name, p := range map[string]Params{
		"output_file_path":   {"output_file_path": dir},
		"output_file_name":   {"output_file_name": "beauty_###"},
		"output_file_format": {"output_file_format": ".png"},
	} {
		if err := h.Actions()[name](p); err != nil {
			t.Fatalf("%s failed: %v", name, err)
		}
	}
	return dir
}

func TestStartRenderBuildsPaddedOutputPath(t *testing.T) {
	h, eng, out := newTestHandler(t)
	dir := configureOutput(t, h)
	if err := h.SetCamera(Params{"camera": "PhysCamera001"}); err != nil {
		t.Fatalf("SetCamera failed: %v", err)
	}

	if err := h.StartRender(Params{"frame": float64(7)}); err != nil {
		t.Fatalf("StartRender failed: %v", err)
	}

	expectedPath := filepath.Join(dir, "beauty_007.png")
	if !eng.Executed(expectedPath) {
		t.Fatalf("Render script should target %s, scripts: %v", expectedPath, eng.Scripts())
	}
	if !eng.Executed("sliderTime = 7") {
		t.Fatalf("Render script should set the frame, scripts: %v", eng.Scripts())
	}
	if !strings.Contains(out.String(), "MaxClient: Finished Rendering Frame 7") {
		t.Fatalf("Expected completion line, got %q", out.String())
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("Output directory should be created: %v", err)
	}
}

func TestStartRenderRequiresFrame(t *testing.T) {
	h, _, out := newTestHandler(t)
	configureOutput(t, h)
	if err := h.StartRender(Params{}); err == nil {
		t.Fatalf("Expected error without frame")
	}
	if !strings.Contains(out.String(), "Error:") {
		t.Fatalf("Expected an error line for the adaptor, got %q", out.String())
	}
}

func TestStartRenderRequiresOutputSettings(t *testing.T) {
	h, _, _ := newTestHandler(t)
	if err := h.StartRender(Params{"frame": float64(1)}); err == nil {
		t.Fatalf("Expected error without output settings")
	}
}

func TestStartRenderRequiresCamera(t *testing.T) {
	h, _, _ := newTestHandler(t)
	configureOutput(t, h)
	if err := h.StartRender(Params{"frame": float64(1)}); err == nil {
		t.Fatalf("Expected error without camera")
	}
}

func TestStartRenderRunCameraTagsOutput(t *testing.T) {
	h, eng, _ := newTestHandler(t)
	dir := configureOutput(t, h)
	if err := h.StartRender(Params{"frame": float64(3), "camera": "CamLeft"}); err != nil {
		t.Fatalf("StartRender failed: %v", err)
	}
	expected := filepath.Join(dir, "beauty_003_CamLeft.png")
	if !eng.Executed(expected) {
		t.Fatalf("Expected output %s, scripts: %v", expected, eng.Scripts())
	}
}

func TestSetCameraRejectsUnknownCamera(t *testing.T) {
	eng := maxscript.NewFakeEngine()
	eng.Respond("getNodeByName", "undefined")
	h := Get("Default_Scanline_Renderer", eng, &bytes.Buffer{})
	if err := h.SetCamera(Params{"camera": "Ghost"}); err == nil {
		t.Fatalf("Expected error for unknown camera")
	}
}

func TestSetSceneFileChecksExistence(t *testing.T) {
	h, eng, _ := newTestHandler(t)
	if err := h.SetSceneFile(Params{"scene_file": "/does/not/exist.max"}); err == nil {
		t.Fatalf("Expected error for missing scene")
	}

	scene := filepath.Join(t.TempDir(), "scene.max")
	if err := os.WriteFile(scene, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := h.SetSceneFile(Params{"scene_file": scene}); err != nil {
		t.Fatalf("SetSceneFile failed: %v", err)
	}
	if !eng.Executed("loadMaxFile") {
		t.Fatalf("Expected loadMaxFile script, got %v", eng.Scripts())
	}
	if !eng.Executed("quiet:true") {
		t.Fatalf("Scene should load in quiet mode, got %v", eng.Scripts())
	}
}

func TestSetStateSetSwitchesRenderer(t *testing.T) {
	h, eng, _ := newTestHandler(t)
	if err := h.SetStateSet(Params{"state_set": "State01"}); err != nil {
		t.Fatalf("SetStateSet failed: %v", err)
	}
	if !eng.Executed("MasterStateSet") {
		t.Fatalf("Expected state set script, got %v", eng.Scripts())
	}
	if !eng.Executed("Default_Scanline_Renderer()") {
		t.Fatalf("Expected renderer check after state set, got %v", eng.Scripts())
	}
}

func TestSetStateSetUnknownStateSet(t *testing.T) {
	eng := maxscript.NewFakeEngine()
	eng.Respond("MasterStateSet", "Error: state set not found")
	h := Get("Default_Scanline_Renderer", eng, &bytes.Buffer{})
	if err := h.SetStateSet(Params{"state_set": "Ghost"}); err == nil {
		t.Fatalf("Expected error for unknown state set")
	}
}

func TestGetDispatch(t *testing.T) {
	eng := maxscript.NewFakeEngine()
	out := &bytes.Buffer{}

	art := Get("ART_Renderer", eng, out)
	if err := art.checkRenderer(); err != nil {
		t.Fatalf("ART checkRenderer failed: %v", err)
	}
	if !eng.Executed("ART_Renderer()") {
		t.Fatalf("Expected ART renderer switch, got %v", eng.Scripts())
	}

	vray := Get("V_Ray_6__update_2_1", eng, out)
	if err := vray.checkRenderer(); err != nil {
		t.Fatalf("V-Ray checkRenderer failed: %v", err)
	}
	if !eng.Executed("rendererClass.classes") {
		t.Fatalf("Expected V-Ray class lookup, got %v", eng.Scripts())
	}
}

func TestImageDimensionActions(t *testing.T) {
	h, eng, _ := newTestHandler(t)
	if err := h.SetImageWidth(Params{"image_width": float64(1920)}); err != nil {
		t.Fatalf("SetImageWidth failed: %v", err)
	}
	if err := h.SetImageHeight(Params{"image_height": float64(1080)}); err != nil {
		t.Fatalf("SetImageHeight failed: %v", err)
	}
	if !eng.Executed("renderWidth = 1920") || !eng.Executed("renderHeight = 1080") {
		t.Fatalf("Expected resolution scripts, got %v", eng.Scripts())
	}
}
