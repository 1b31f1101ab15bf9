// event_cycle_check.go: Static event cycle detection for the event bus wiring
// Usage: go run scripts/event_cycle_check.go
// Parses pkg/ for bus.Register calls and for the events each handler builds,
// directly or through the functions it calls, then detects cycles in the
// resulting event flow graph.
package main

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const eventsPkg = "events"

// funcInfo records what a function body builds and calls.
type funcInfo struct {
	emits map[string]bool // event struct names
	calls map[string]bool // callee names, receivers ignored
}

func newFuncInfo() *funcInfo {
	return &funcInfo{emits: map[string]bool{}, calls: map[string]bool{}}
}

// registration is one bus.Register(events.EventTypeX, handler) call.
type registration struct {
	eventType string
	handler   *funcInfo
	name      string
}

func scanBody(body ast.Node, info *funcInfo) {
	ast.Inspect(body, func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.CompositeLit:
			if sel, ok := x.Type.(*ast.SelectorExpr); ok {
				if pkg, ok := sel.X.(*ast.Ident); ok && pkg.Name == eventsPkg {
					info.emits[sel.Sel.Name] = true
				}
			}
		case *ast.CallExpr:
			switch fn := x.Fun.(type) {
			case *ast.Ident:
				info.calls[fn.Name] = true
			case *ast.SelectorExpr:
				info.calls[fn.Sel.Name] = true
			}
		}
		return true
	})
}

// eventTypeOf maps "GatewaySessionConfirmed" to "EventTypeGatewaySessionConfirmed".
func eventTypeOf(structName string) string {
	return "EventType" + structName
}

func eventCycleCheck() int {
	fset := token.NewFileSet()
	funcs := map[string][]*funcInfo{}
	var regs []registration

	err := filepath.WalkDir("pkg", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		file, err := parser.ParseFile(fset, path, nil, 0)
		if err != nil {
			return err
		}
		for _, decl := range file.Decls {
			fd, ok := decl.(*ast.FuncDecl)
			if !ok || fd.Body == nil {
				continue
			}
			info := newFuncInfo()
			scanBody(fd.Body, info)
			funcs[fd.Name.Name] = append(funcs[fd.Name.Name], info)

			// 1. Collect bus.Register calls made inside this function
			ast.Inspect(fd.Body, func(n ast.Node) bool {
				call, ok := n.(*ast.CallExpr)
				if !ok || len(call.Args) != 2 {
					return true
				}
				sel, ok := call.Fun.(*ast.SelectorExpr)
				if !ok || sel.Sel.Name != "Register" {
					return true
				}
				evSel, ok := call.Args[0].(*ast.SelectorExpr)
				if !ok {
					return true
				}
				reg := registration{eventType: evSel.Sel.Name}
				switch h := call.Args[1].(type) {
				case *ast.FuncLit:
					reg.handler = newFuncInfo()
					reg.name = "func literal in " + fd.Name.Name
					scanBody(h.Body, reg.handler)
				case *ast.SelectorExpr:
					reg.name = h.Sel.Name
				case *ast.Ident:
					reg.name = h.Name
				default:
					return true
				}
				regs = append(regs, reg)
				return true
			})
		}
		return nil
	})
	if err != nil {
		fmt.Println("Error parsing pkg/:", err)
		return 1
	}

	// 2. Resolve what each handler emits, following calls by name
	var reach func(info *funcInfo, seen map[string]bool, out map[string]bool)
	reach = func(info *funcInfo, seen map[string]bool, out map[string]bool) {
		for e := range info.emits {
			out[eventTypeOf(e)] = true
		}
		for callee := range info.calls {
			if seen[callee] {
				continue
			}
			seen[callee] = true
			for _, fi := range funcs[callee] {
				reach(fi, seen, out)
			}
		}
	}

	graph := make(map[string][]string)
	for _, reg := range regs {
		out := map[string]bool{}
		seen := map[string]bool{reg.name: true}
		if reg.handler != nil {
			reach(reg.handler, seen, out)
		} else {
			for _, fi := range funcs[reg.name] {
				reach(fi, seen, out)
			}
		}
		for e := range out {
			graph[reg.eventType] = append(graph[reg.eventType], e)
		}
		if _, ok := graph[reg.eventType]; !ok {
			graph[reg.eventType] = nil
		}
	}

	// 3. Detect cycles
	visited := make(map[string]bool)
	stack := make(map[string]bool)
	var hasCycle bool
	var path []string
	var dfs func(string) bool
	dfs = func(node string) bool {
		if stack[node] {
			fmt.Println("Cycle detected:", append(path, node))
			hasCycle = true
			return true
		}
		if visited[node] {
			return false
		}
		visited[node] = true
		stack[node] = true
		path = append(path, node)
		for _, neighbor := range graph[node] {
			if dfs(neighbor) {
				return true
			}
		}
		stack[node] = false
		path = path[:len(path)-1]
		return false
	}

	nodes := make([]string, 0, len(graph))
	for from := range graph {
		nodes = append(nodes, from)
	}
	sort.Strings(nodes)

	fmt.Println("\nEvent Flow Graph:")
	for _, from := range nodes {
		tos := graph[from]
		sort.Strings(tos)
		fmt.Printf("  %s -> %v\n", from, tos)
	}

	fmt.Println("\nCycle Detection:")
	for _, node := range nodes {
		if !visited[node] {
			dfs(node)
		}
	}
	if hasCycle {
		fmt.Println("\n❌ Event cycle(s) detected! Review your event flow.")
		return 1
	}
	fmt.Println("\n✅ No event cycles detected.")
	return 0
}

func main() {
	os.Exit(eventCycleCheck())
}
