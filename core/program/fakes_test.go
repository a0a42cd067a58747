package program

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"storycast/core/audio"
	"storycast/db"
	"storycast/model"
)

// fakeStore 内存对象存储
type fakeStore struct {
	mu          sync.Mutex
	objects     map[string][]byte
	manifests   map[string]*model.CombinedManifest
	uploads     []string
	failUpload  bool
	putManifest int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:   make(map[string][]byte),
		manifests: make(map[string]*model.CombinedManifest),
	}
}

func manifestScope(key model.GenerationKey) string {
	return key.World + "/" + key.OwnerID + "/" + key.Language
}

func (s *fakeStore) UploadProgram(_ context.Context, key model.GenerationKey, localPath string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpload {
		return "", fmt.Errorf("upload refused")
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}
	objectPath := "programs/" + manifestScope(key) + "/" + key.Variant + "/program.mp3"
	s.objects[objectPath] = data
	s.uploads = append(s.uploads, objectPath)
	return objectPath, nil
}

func (s *fakeStore) DownloadToFile(_ context.Context, objectPath string, localPath string) error {
	s.mu.Lock()
	data, ok := s.objects[objectPath]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("object %s not found", objectPath)
	}
	return os.WriteFile(localPath, data, 0644)
}

func (s *fakeStore) GetManifest(_ context.Context, key model.GenerationKey) (*model.CombinedManifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.manifests[manifestScope(key)]
	if !ok {
		return nil, nil
	}
	clone := *m
	return &clone, nil
}

func (s *fakeStore) PutManifest(_ context.Context, key model.GenerationKey, m *model.CombinedManifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *m
	s.manifests[manifestScope(key)] = &clone
	s.putManifest++
	return nil
}

func (s *fakeStore) addObject(path, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = []byte(content)
}

// fakeLister 固定返回一组录音文件名
type fakeLister struct {
	recordings []string
	err        error
}

func (l *fakeLister) ListRecordings(_ context.Context, _ model.GenerationKey) ([]string, error) {
	return l.recordings, l.err
}

// fakeEngine 把每步操作的结果编码成文本写进输出文件，
// 测试直接断言最终文件内容里的顺序和结构。
type fakeEngine struct {
	mu            sync.Mutex
	loudness      map[string]string // 按内容匹配的input_i
	failMeasure   map[string]bool   // 按内容匹配
	failNormalize bool
	calls         []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		loudness:    make(map[string]string),
		failMeasure: make(map[string]bool),
	}
}

func (e *fakeEngine) recordCall(op string) {
	e.mu.Lock()
	e.calls = append(e.calls, op)
	e.mu.Unlock()
}

func (e *fakeEngine) Silence(_ context.Context, outPath string, seconds float64) error {
	e.recordCall("silence")
	return os.WriteFile(outPath, []byte(fmt.Sprintf("silence(%.1f)", seconds)), 0644)
}

func (e *fakeEngine) Concat(_ context.Context, inputs []string, outPath string) error {
	e.recordCall("concat")
	parts := make([]string, 0, len(inputs))
	for _, in := range inputs {
		data, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		parts = append(parts, string(data))
	}
	return os.WriteFile(outPath, []byte(strings.Join(parts, "|")), 0644)
}

func (e *fakeEngine) MeasureLoudness(_ context.Context, path string, _ audio.Target) (*audio.Measurement, error) {
	e.recordCall("measure")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	content := string(data)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failMeasure[content] {
		return nil, fmt.Errorf("measurement failed for %s", content)
	}
	inputI := "-20.0"
	if v, ok := e.loudness[content]; ok {
		inputI = v
	}
	return &audio.Measurement{
		InputI:      inputI,
		InputTP:     "-2.0",
		InputLRA:    "5.0",
		InputThresh: "-30.0",
		Offset:      "0.0",
	}, nil
}

func (e *fakeEngine) Normalize(_ context.Context, inPath, outPath string, target audio.Target, _ *audio.Measurement) error {
	e.recordCall("normalize")
	if e.failNormalize {
		return fmt.Errorf("normalization engine error")
	}
	data, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	out := fmt.Sprintf("norm@%.1f(%s)", target.IntegratedLUFS, string(data))
	return os.WriteFile(outPath, []byte(out), 0644)
}

func (e *fakeEngine) MixWithBackground(_ context.Context, voicePath, bgPath, outPath string, bgVolume float64) error {
	e.recordCall("mix")
	voice, err := os.ReadFile(voicePath)
	if err != nil {
		return err
	}
	bg, err := os.ReadFile(bgPath)
	if err != nil {
		return err
	}
	out := fmt.Sprintf("mix(%s+%s@%.2f)", string(voice), string(bg), bgVolume)
	return os.WriteFile(outPath, []byte(out), 0644)
}

func (e *fakeEngine) EncodeMP3(_ context.Context, inPath, outPath, bitrate string) error {
	e.recordCall("encode")
	data, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, []byte(fmt.Sprintf("enc@%s(%s)", bitrate, string(data))), 0644)
}

func (e *fakeEngine) Duration(_ context.Context, _ string) (float64, error) {
	e.recordCall("duration")
	return 42.5, nil
}

// fakeRuns 收集审计记录
type fakeRuns struct {
	mu   sync.Mutex
	runs []*db.ProgramRun
}

func (r *fakeRuns) RecordRun(_ context.Context, run *db.ProgramRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func (r *fakeRuns) RecentRuns(_ context.Context, ownerID string, limit int) ([]db.ProgramRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []db.ProgramRun
	for i := len(r.runs) - 1; i >= 0 && len(out) < limit; i-- {
		if r.runs[i].OwnerID == ownerID {
			out = append(out, *r.runs[i])
		}
	}
	return out, nil
}
