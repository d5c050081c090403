package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func TestCheckMarksNewItemsWithoutAdvancing(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"news":[
			{"id":5,"title":"seen","date":"2024-01-01 00:00:00+03"},
			{"id":7,"title":"fresh","date":"2024-03-09 00:00:00+03"}
		]}}`))
	}))
	defer srv.Close()

	cfgPath, _, wm := newTestConfig(t, srv.URL)
	writeFile(t, wm, `{"last_news_id": 5}`)

	var out bytes.Buffer
	if err := Check(context.Background(), cfgPath, &out); err != nil {
		t.Fatalf("Check: %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"watermark: 5, items: 2, new: 1",
		"* 7\t09.03.2024\tfresh",
		"  5\t01.01.2024\tseen",
		"https://stankin.ru/news/item_7",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}

	data, err := os.ReadFile(wm)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"last_news_id": 5}` {
		t.Fatalf("watermark file changed: %s", data)
	}
}

func TestListDestinations(t *testing.T) {
	t.Parallel()
	cfgPath, groups, _ := newTestConfig(t, "https://example.org/api")
	writeFile(t, groups, `[-1001, -1002]`)

	var out bytes.Buffer
	if err := ListDestinations(cfgPath, &out); err != nil {
		t.Fatal(err)
	}
	if out.String() != "-1001\n-1002\n" {
		t.Fatalf("output = %q", out.String())
	}
}
