package log

import (
	"bytes"

	"go.uber.org/zap/zaptest"
)

// testingWriter 把日志行转发到 t.Logf，使其随测试输出一起展示。
type testingWriter struct {
	t zaptest.TestingT
	// failOnWrite 为 true 时任何写入都会使测试失败，用于 zap 内部错误输出。
	failOnWrite bool
}

func newTestingWriter(t zaptest.TestingT) testingWriter {
	return testingWriter{t: t}
}

func (w testingWriter) failing() testingWriter {
	w.failOnWrite = true
	return w
}

func (w testingWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", bytes.TrimRight(p, "\n"))
	if w.failOnWrite {
		w.t.Fail()
	}
	return len(p), nil
}

func (w testingWriter) Sync() error {
	return nil
}
