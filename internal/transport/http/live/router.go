package livehttp

import (
	"bufio"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"helix/internal/logger"
	"helix/internal/store/decisionlog"
)

// DiaryReader 是对交易日记的只读视图。
type DiaryReader interface {
	Path() string
	Recent(n int) ([]map[string]any, error)
}

// DecisionReader 翻页读取决策留档。
type DecisionReader interface {
	List(ctx context.Context, limit, offset int) ([]decisionlog.Record, error)
}

// Router 暴露实盘巡检接口，全部只读。
type Router struct {
	diary     DiaryReader
	decisions DecisionReader
	logPaths  map[string]string
	logNames  []string
}

func NewRouter(diary DiaryReader, decisions DecisionReader, logPaths map[string]string) *Router {
	names := make([]string, 0, len(logPaths))
	for name, path := range logPaths {
		if strings.TrimSpace(name) == "" || strings.TrimSpace(path) == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return &Router{diary: diary, decisions: decisions, logPaths: logPaths, logNames: names}
}

// Register 将路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/diary", r.handleDiary)
	group.GET("/logs", r.handleLogs)
	group.GET("/decisions", r.handleDecisions)
}

func (r *Router) handleDiary(c *gin.Context) {
	if r.diary == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "日记未启用"})
		return
	}
	if c.Query("download") == "1" {
		c.FileAttachment(r.diary.Path(), filepath.Base(r.diary.Path()))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	if c.Query("raw") == "1" {
		lines, err := readLastLines(r.diary.Path(), limit)
		if err != nil {
			if os.IsNotExist(err) {
				c.JSON(http.StatusOK, gin.H{"lines": []string{}})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"lines": lines})
		return
	}
	entries, err := r.diary.Recent(limit)
	if err != nil {
		logger.Errorf("[api] diary read failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []map[string]any{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func (r *Router) handleLogs(c *gin.Context) {
	if len(r.logPaths) == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "未配置日志文件"})
		return
	}
	name := strings.TrimSpace(c.DefaultQuery("name", ""))
	path := ""
	if name != "" {
		path = strings.TrimSpace(r.logPaths[name])
	}
	if path == "" && len(r.logNames) > 0 {
		name = r.logNames[0]
		path = r.logPaths[name]
	}
	if path == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "未知日志", "available": r.logNames})
		return
	}
	if c.Query("download") == "1" {
		c.FileAttachment(path, filepath.Base(path))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	if limit <= 0 {
		limit = 200
	}
	lines, err := readLastLines(path, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "path": path})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"name":      name,
		"path":      path,
		"lines":     lines,
		"available": r.logNames,
	})
}

func (r *Router) handleDecisions(c *gin.Context) {
	if r.decisions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "决策留档未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	recs, err := r.decisions.List(c.Request.Context(), limit, offset)
	if err != nil {
		logger.Errorf("[api] decisions read failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if recs == nil {
		recs = []decisionlog.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": recs, "count": len(recs)})
}

const maxLogLineSize = 4 * 1024 * 1024 // 大行兜底，LLM 日志单行可能很长

func readLastLines(path string, limit int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLineSize)
	lines := make([]string, 0, limit)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > limit {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
