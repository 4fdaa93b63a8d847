package browser

import (
	"fmt"
	"html/template"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
)

const (
	memberCookie = "member"

	// StorefrontUser and StorefrontPassword are the only account the fake
	// storefront accepts.
	StorefrontUser     = "qa-member"
	StorefrontPassword = "correct-horse"
)

// Product is an item listed by the fake storefront.
type Product struct {
	Code  int
	Name  string
	Price int
}

// Catalog is what every search returns, in order. The first result opens in a
// new tab like the real storefront's listing links.
var Catalog = []Product{
	{Code: 1, Name: "LG 그램 15인치 노트북", Price: 1290000},
	{Code: 2, Name: "삼성 갤럭시북 노트북", Price: 990000},
}

// Storefront is an in-memory shop with the real storefront's selectors.
type Storefront struct {
	mu   sync.Mutex
	cart map[int]int
	tmpl *template.Template
}

func NewStorefront() *Storefront {
	return &Storefront{
		cart: make(map[int]int),
		tmpl: template.Must(template.New("").Funcs(template.FuncMap{"won": won}).Parse(storefrontTemplates)),
	}
}

// Reset empties the cart.
func (s *Storefront) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart = make(map[int]int)
}

// CartQuantity returns how many of product code are in the cart.
func (s *Storefront) CartQuantity(code int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart[code]
}

// Server starts the storefront on a test server.
func (s *Storefront) Server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.home)
	mux.HandleFunc("GET /login", s.render("login", nil))
	mux.HandleFunc("POST /login", s.login)
	mux.HandleFunc("GET /logout", s.logout)
	mux.HandleFunc("GET /search", s.search)
	mux.HandleFunc("GET /item", s.item)
	mux.HandleFunc("GET /cart/", s.cartPage)
	mux.HandleFunc("POST /cart/add", s.cartAdd)
	mux.HandleFunc("POST /cart/quantity", s.cartQuantity)
	mux.HandleFunc("POST /cart/remove", s.cartRemove)
	mux.HandleFunc("POST /cart/clear", s.cartClear)
	mux.HandleFunc("GET /checkout", s.render("checkout", nil))
	mux.HandleFunc("GET /order/complete", s.render("complete", nil))
	return httptest.NewServer(mux)
}

func (s *Storefront) render(name string, data any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.write(w, name, data)
	}
}

func (s *Storefront) write(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func loggedIn(r *http.Request) bool {
	c, err := r.Cookie(memberCookie)
	return err == nil && c.Value == StorefrontUser
}

func (s *Storefront) home(w http.ResponseWriter, r *http.Request) {
	s.write(w, "home", map[string]any{"LoggedIn": loggedIn(r)})
}

func (s *Storefront) login(w http.ResponseWriter, r *http.Request) {
	if r.FormValue("id") != StorefrontUser || r.FormValue("password") != StorefrontPassword {
		s.write(w, "login", map[string]any{"Error": "아이디 또는 비밀번호가 올바르지 않습니다"})
		return
	}
	http.SetCookie(w, &http.Cookie{Name: memberCookie, Value: StorefrontUser, Path: "/"})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Storefront) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: memberCookie, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Storefront) search(w http.ResponseWriter, r *http.Request) {
	s.write(w, "search", map[string]any{
		"Keyword":  r.URL.Query().Get("keyword"),
		"Products": Catalog,
		"LoggedIn": loggedIn(r),
	})
}

func (s *Storefront) item(w http.ResponseWriter, r *http.Request) {
	p, ok := product(r.URL.Query().Get("goodscode"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.write(w, "item", p)
}

type cartLine struct {
	Product
	Quantity int
}

func (s *Storefront) cartPage(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	var lines []cartLine
	total := 0
	for _, p := range Catalog {
		if q := s.cart[p.Code]; q > 0 {
			lines = append(lines, cartLine{Product: p, Quantity: q})
			total += q * p.Price
		}
	}
	s.mu.Unlock()
	sort.Slice(lines, func(i, j int) bool { return lines[i].Code < lines[j].Code })
	s.write(w, "cart", map[string]any{"Lines": lines, "Total": total})
}

func (s *Storefront) cartAdd(w http.ResponseWriter, r *http.Request) {
	p, ok := product(r.FormValue("code"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	qty, err := strconv.Atoi(r.FormValue("quantity"))
	if err != nil || qty < 1 {
		qty = 1
	}
	s.mu.Lock()
	s.cart[p.Code] += qty
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Storefront) cartQuantity(w http.ResponseWriter, r *http.Request) {
	p, ok := product(r.FormValue("code"))
	qty, err := strconv.Atoi(r.FormValue("quantity"))
	if !ok || err != nil || qty < 1 {
		http.Error(w, "bad quantity", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.cart[p.Code] = qty
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Storefront) cartRemove(w http.ResponseWriter, r *http.Request) {
	p, ok := product(r.FormValue("code"))
	if ok {
		s.mu.Lock()
		delete(s.cart, p.Code)
		s.mu.Unlock()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Storefront) cartClear(w http.ResponseWriter, r *http.Request) {
	s.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func product(raw string) (Product, bool) {
	code, err := strconv.Atoi(raw)
	if err != nil {
		return Product{}, false
	}
	for _, p := range Catalog {
		if p.Code == code {
			return p, true
		}
	}
	return Product{}, false
}

func won(n int) string {
	s := strconv.Itoa(n)
	out := make([]byte, 0, len(s)+len(s)/3)
	for i := range len(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	return fmt.Sprintf("%s원", out)
}

const storefrontTemplates = `
{{define "header"}}<header>
  <a href="/">G마켓</a>
  {{if .}}<a href="/logout">로그아웃</a>{{else}}<a href="/login">로그인</a>{{end}}
  <a href="/cart/" title="장바구니">cart</a>
</header>{{end}}

{{define "home"}}<!doctype html><html><head><meta charset="utf-8"><title>G마켓</title></head><body>
{{template "header" .LoggedIn}}
<form onsubmit="return false">
  <input id="form__search-keyword" name="keyword">
  <button class="button__search" type="button"
    onclick="location.href='/search?keyword='+encodeURIComponent(document.getElementById('form__search-keyword').value)">검색</button>
</form>
</body></html>{{end}}

{{define "login"}}<!doctype html><html><head><meta charset="utf-8"><title>로그인</title></head><body>
{{with .}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="/login">
  <input id="typeMemberInputId" name="id">
  <input id="typeMemberInputPassword" name="password" type="password">
  <button id="btn_memberLogin" type="submit">로그인</button>
</form>
</body></html>{{end}}

{{define "search"}}<!doctype html><html><head><meta charset="utf-8"><title>{{.Keyword}} 검색결과</title></head><body>
{{template "header" .LoggedIn}}
<div class="section__module-wrap">
{{range $i, $p := .Products}}
  <a class="item" href="/item?goodscode={{$p.Code}}"{{if eq $i 0}} target="_blank"{{end}}>
    <span class="item__title">{{$p.Name}}</span>
    <strong class="price">{{won $p.Price}}</strong>
  </a>
{{end}}
</div>
</body></html>{{end}}

{{define "item"}}<!doctype html><html><head><meta charset="utf-8"><title>{{.Name}}</title></head><body>
<h1 class="itemtit">{{.Name}}</h1>
<strong class="price_real">{{won .Price}}</strong>
<input class="num" value="1">
<button type="button" onclick="fetch('/cart/add',{method:'POST',body:new URLSearchParams({code:'{{.Code}}',quantity:document.querySelector('input.num').value})}).then(()=>{document.body.dataset.added='1'})">장바구니</button>
<button type="button" onclick="location.href='/checkout'">구매하기</button>
</body></html>{{end}}

{{define "cart"}}<!doctype html><html><head><meta charset="utf-8"><title>장바구니</title></head><body>
<input type="checkbox" id="item_all_select"><label for="item_all_select">전체선택</label>
<dl>
{{range .Lines}}
  <dd>
    <div class="item_desc"><span>{{.Name}}</span></div>
    <input class="item_qty_count" value="{{.Quantity}}"
      onchange="fetch('/cart/quantity',{method:'POST',body:new URLSearchParams({code:'{{.Code}}',quantity:this.value})})">
    <button class="btn_del" type="button"
      onclick="fetch(document.getElementById('item_all_select').checked?'/cart/clear':'/cart/remove',{method:'POST',body:new URLSearchParams({code:'{{.Code}}'})}).then(()=>location.reload())">삭제</button>
  </dd>
{{end}}
</dl>
{{if .Lines}}<p class="total_price">{{won .Total}}</p>
<button type="button" onclick="location.href='/checkout'">구매하기</button>{{else}}<p class="empty">장바구니가 비어 있습니다</p>{{end}}
</body></html>{{end}}

{{define "checkout"}}<!doctype html><html><head><meta charset="utf-8"><title>주문/결제</title></head><body>
<h2 class="text__main-title">주문/결제</h2>
<div style="height:1600px"></div>
<ul class="payment">
  <li><button type="button" onclick="document.body.dataset.payment='smile'">스마일페이</button></li>
  <li><button type="button" onclick="document.getElementById('general').style.display='block'">일반결제</button></li>
</ul>
<ul id="general" style="display:none">
  <li><button type="button" onclick="document.body.dataset.payment=this.textContent">신용/체크카드</button></li>
  <li><button type="button" onclick="document.body.dataset.payment=this.textContent">해외발급 신용카드</button></li>
  <li><button type="button" onclick="document.body.dataset.payment=this.textContent">무통장 입금</button></li>
  <li><button type="button" onclick="document.body.dataset.payment=this.textContent">휴대폰 소액결제</button></li>
</ul>
<button type="button" onclick="location.href='/order/complete'">결제하기</button>
</body></html>{{end}}

{{define "complete"}}<!doctype html><html><head><meta charset="utf-8"><title>주문완료</title></head><body>
<p>주문이 완료되었습니다</p>
</body></html>{{end}}
`
