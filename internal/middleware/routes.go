package middleware

import (
	"net/http"
	"path"
	"strings"
)

// RouteClass はゲートが適用するアクセス区分。
type RouteClass int

const (
	// ClassPublic は誰でもアクセスできるルート。
	ClassPublic RouteClass = iota
	// ClassAuthPassthrough は認証処理自体のルートで、判定を行わずに通過させる。
	ClassAuthPassthrough
	// ClassGuestOnly は未ログイン利用者向けのページ（ログイン画面など）。
	ClassGuestOnly
	// ClassAdminOnly は管理者のみ。
	ClassAdminOnly
	// ClassAdminOrWriter は管理者またはライターのみ。
	ClassAdminOrWriter
	// ClassProtected はログイン済みであれば誰でもアクセスできる。
	ClassProtected
)

// String はメトリクスやログ用の区分名を返す。
func (c RouteClass) String() string {
	switch c {
	case ClassAuthPassthrough:
		return "auth_passthrough"
	case ClassGuestOnly:
		return "guest_only"
	case ClassAdminOnly:
		return "admin_only"
	case ClassAdminOrWriter:
		return "admin_or_writer"
	case ClassProtected:
		return "protected"
	default:
		return "public"
	}
}

// Route はリクエストの分類結果。
type Route struct {
	Class RouteClass
	// API は/api/配下のリクエストかどうか。APIはJSONで拒否し、ページはリダイレクトする。
	API bool
}

// RouteRule は1件の分類ルール。
// Patternはパスセグメント単位で照合し、"*"は任意の1セグメント、
// 末尾の"**"は0個以上の残りセグメントに一致する。
// Methodsが空の場合は全メソッドに一致する。
type RouteRule struct {
	Class   RouteClass
	Methods []string
	Pattern string
}

// RouteTable はリクエストをRouteClassに分類する。
// 複数のルールに一致した場合は区分の優先順位
// (AuthPassthrough, GuestOnly, AdminOnly, AdminOrWriter, Protected) で決まり、
// どれにも一致しなければPublicとなる。
type RouteTable struct {
	rules []RouteRule
}

// NewRouteTable はルール一覧からRouteTableを生成する。
func NewRouteTable(rules []RouteRule) *RouteTable {
	return &RouteTable{rules: rules}
}

// DefaultRouteTable はnewsdeskのルーティングに対応した分類表を返す。
func DefaultRouteTable() *RouteTable {
	all := []string(nil)
	post := []string{http.MethodPost}
	return NewRouteTable([]RouteRule{
		{Class: ClassAuthPassthrough, Methods: all, Pattern: "/api/auth/**"},

		{Class: ClassGuestOnly, Methods: all, Pattern: "/login"},
		{Class: ClassGuestOnly, Methods: all, Pattern: "/register"},
		{Class: ClassGuestOnly, Methods: all, Pattern: "/forgot-password"},
		{Class: ClassGuestOnly, Methods: all, Pattern: "/reset-password"},

		{Class: ClassAdminOnly, Methods: all, Pattern: "/admin/**"},
		{Class: ClassAdminOnly, Methods: all, Pattern: "/api/admin/**"},
		{Class: ClassAdminOnly, Methods: post, Pattern: "/api/categories"},
		{Class: ClassAdminOnly, Methods: []string{http.MethodDelete}, Pattern: "/api/categories/*"},

		{Class: ClassAdminOrWriter, Methods: all, Pattern: "/dashboard/**"},
		{Class: ClassAdminOrWriter, Methods: post, Pattern: "/api/articles"},
		{Class: ClassAdminOrWriter, Methods: []string{http.MethodGet}, Pattern: "/api/articles/mine"},
		{Class: ClassAdminOrWriter, Methods: post, Pattern: "/api/articles/import"},
		{Class: ClassAdminOrWriter, Methods: []string{http.MethodPut, http.MethodDelete}, Pattern: "/api/articles/*"},
		{Class: ClassAdminOrWriter, Methods: []string{http.MethodPost, http.MethodDelete}, Pattern: "/api/articles/*/publish"},

		{Class: ClassProtected, Methods: all, Pattern: "/profile/**"},
		{Class: ClassProtected, Methods: all, Pattern: "/bookmarks/**"},
		{Class: ClassProtected, Methods: all, Pattern: "/api/profile/**"},
		{Class: ClassProtected, Methods: all, Pattern: "/api/bookmarks/**"},
		{Class: ClassProtected, Methods: post, Pattern: "/api/articles/*/comments"},
		{Class: ClassProtected, Methods: []string{http.MethodDelete}, Pattern: "/api/comments/*"},
	})
}

// classPrecedence は判定順序。先頭ほど優先される。
var classPrecedence = []RouteClass{
	ClassAuthPassthrough,
	ClassGuestOnly,
	ClassAdminOnly,
	ClassAdminOrWriter,
	ClassProtected,
}

// Classify はメソッドとパスからRouteを決定する。
// パスはpath.Cleanで正規化してから照合する。
func (t *RouteTable) Classify(method, rawPath string) Route {
	p := cleanPath(rawPath)
	route := Route{Class: ClassPublic, API: p == "/api" || strings.HasPrefix(p, "/api/")}

	for _, class := range classPrecedence {
		for _, rule := range t.rules {
			if rule.Class != class {
				continue
			}
			if methodMatches(rule.Methods, method) && pathMatches(rule.Pattern, p) {
				route.Class = class
				return route
			}
		}
	}
	return route
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}

func methodMatches(methods []string, method string) bool {
	if len(methods) == 0 {
		return true
	}
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}

// pathMatches はセグメント単位でパターンとパスを照合する。
func pathMatches(pattern, p string) bool {
	patSegs := splitSegments(pattern)
	pathSegs := splitSegments(p)

	if n := len(patSegs); n > 0 && patSegs[n-1] == "**" {
		prefix := patSegs[:n-1]
		if len(pathSegs) < len(prefix) {
			return false
		}
		return segmentsMatch(prefix, pathSegs[:len(prefix)])
	}

	if len(patSegs) != len(pathSegs) {
		return false
	}
	return segmentsMatch(patSegs, pathSegs)
}

func splitSegments(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func segmentsMatch(pattern, segs []string) bool {
	for i, ps := range pattern {
		if ps == "*" {
			if segs[i] == "" {
				return false
			}
			continue
		}
		if ps != segs[i] {
			return false
		}
	}
	return true
}
