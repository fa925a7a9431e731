package router

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/loyalty/backend/internal/interfaces/http/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var routerAnnotation = regexp.MustCompile(`@Router\s+(\S+)\s+\[(\w+)\]`)

// documentedRoutes collects the @Router annotations of the handler package
func documentedRoutes(t *testing.T) []string {
	t.Helper()
	dir := filepath.Join("..", "handler")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var routes []string
	fset := token.NewFileSet()
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ParseComments)
		require.NoError(t, err)
		for _, group := range file.Comments {
			for _, m := range routerAnnotation.FindAllStringSubmatch(group.Text(), -1) {
				path := regexp.MustCompile(`\{(\w+)\}`).ReplaceAllString(m[1], ":$1")
				routes = append(routes, strings.ToUpper(m[2])+" /api/v1"+path)
			}
		}
	}
	return routes
}

func TestRegisterAPI_EveryRouteIsDocumented(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)
	RegisterAPI(r, Handlers{
		Program:    handler.NewProgramHandler(nil),
		Enrollment: handler.NewEnrollmentHandler(nil, nil),
		Dashboard:  handler.NewDashboardHandler(nil),
		Identifier: handler.NewIdentifierHandler(nil),
		System:     handler.NewSystemHandler("loyalty", "test", nil),
	})
	r.Setup()

	var registered []string
	for _, route := range engine.Routes() {
		registered = append(registered, route.Method+" "+route.Path)
	}

	assert.ElementsMatch(t, registered, documentedRoutes(t))
}
