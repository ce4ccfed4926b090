package main

import (
	"io"
	"net/http"
	"strconv"

	"fireplay/api"
	"fireplay/bus"
	"fireplay/errs"
	"fireplay/routes"
	"fireplay/services/cart"
	"fireplay/services/catalog"
	"fireplay/services/contact"
	"fireplay/validator"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Server struct {
	Catalog catalog.Service
	Contact contact.Service
	TaxRate float64
}

func NewServer(catalogService catalog.Service, contactService contact.Service, taxRate float64) Server {
	return Server{
		Catalog: catalogService,
		Contact: contactService,
		TaxRate: taxRate,
	}
}

// Routes mounts every API route on r.
func (s Server) Routes(r gin.IRoutes) {
	r.GET("/ping", s.GetPing)

	r.GET("/games", s.ListGames)
	r.GET("/games/:slug", s.GetGame)
	r.GET("/games/:slug/screenshots", s.GetScreenshots)

	r.GET("/cart", s.GetCart)
	r.DELETE("/cart", s.ClearCart)
	r.POST("/cart/items", s.AddCartItem)
	r.PUT("/cart/items/:id", s.SetCartQuantity)
	r.DELETE("/cart/items/:id", s.RemoveCartItem)
	r.GET("/cart/events", s.CartEvents)
	r.GET("/cart/checkout", s.Checkout)

	r.GET("/favorites", s.GetFavorites)
	r.POST("/favorites", s.AddFavorite)
	r.POST("/favorites/toggle", s.ToggleFavorite)
	r.DELETE("/favorites/:id", s.RemoveFavorite)
	r.GET("/favorites/events", s.FavoritesEvents)

	r.POST("/register", s.Register)
	r.POST("/login", s.Login)
	r.POST("/logout", s.Logout)
	r.GET("/session", s.GetSession)
	r.POST("/session/token", s.ExchangeToken)
	r.GET("/dashboard", s.Dashboard)

	r.POST("/contact", s.SendContact)
}

func respondError(c *gin.Context, err error) {
	code, body := api.TransformError(err, c.Request.URL.Path)
	if code >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	c.JSON(code, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, api.Error{Error: err.Error()})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, err)
		return 0, false
	}
	return id, true
}

func (s Server) GetPing(c *gin.Context) {
	c.JSON(http.StatusOK, api.Pong{Ping: "pong"})
}

func (s Server) ListGames(c *gin.Context) {
	var q api.GamesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	page := s.Catalog.Search(c.Request.Context(), api.TransformQuery(q))
	c.JSON(http.StatusOK, api.TransformGamesPage(page))
}

func (s Server) GetGame(c *gin.Context) {
	details, err := s.Catalog.Game(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.TransformGameDetails(details))
}

func (s Server) GetScreenshots(c *gin.Context) {
	c.JSON(http.StatusOK, s.Catalog.Screenshots(c.Request.Context(), c.Param("slug")))
}

func (s Server) cartView(items []cart.Item) api.Cart {
	return cart.Summarize(items, s.TaxRate)
}

func (s Server) GetCart(c *gin.Context) {
	store := routes.CurrentDevice(c).Cart
	c.JSON(http.StatusOK, s.cartView(store.Load(c.Request.Context())))
}

func (s Server) ClearCart(c *gin.Context) {
	store := routes.CurrentDevice(c).Cart
	if err := store.Clear(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.cartView(nil))
}

// AddCartItem prices the game from the catalog, so clients only name it.
func (s Server) AddCartItem(c *gin.Context) {
	var body api.AddCartItem
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	game, err := s.Catalog.Game(ctx, body.Slug)
	if err != nil {
		respondError(c, err)
		return
	}
	items, err := routes.CurrentDevice(c).Cart.AddOrIncrement(ctx, cart.Item{
		ID:    game.ID,
		Slug:  game.Slug,
		Name:  game.Name,
		Image: game.BackgroundImage,
		Price: catalog.PriceFor(game.Rating).Price,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.cartView(items))
}

func (s Server) SetCartQuantity(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body api.SetQuantity
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	items, err := routes.CurrentDevice(c).Cart.SetQuantity(c.Request.Context(), id, body.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.cartView(items))
}

func (s Server) RemoveCartItem(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	items, err := routes.CurrentDevice(c).Cart.Remove(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.cartView(items))
}

// stream sends snapshot once and again after every signal on b until the
// client goes away.
func stream(c *gin.Context, event string, b *bus.Bus, snapshot func() any) {
	signals, release := b.Notify()
	defer release()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(event, snapshot())
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-signals:
			c.SSEvent(event, snapshot())
			return true
		}
	})
}

func (s Server) CartEvents(c *gin.Context) {
	store := routes.CurrentDevice(c).Cart
	ctx := c.Request.Context()
	stream(c, "cart", store.Bus(), func() any {
		return s.cartView(store.Load(ctx))
	})
}

func (s Server) Checkout(c *gin.Context) {
	d := routes.CurrentDevice(c)
	ctx := c.Request.Context()
	id := d.Gate.Current(ctx)
	if id == nil {
		respondError(c, errs.ErrAuthRequired)
		return
	}
	c.JSON(http.StatusOK, api.Checkout{
		User: api.TransformUser(id),
		Cart: s.cartView(d.Cart.Load(ctx)),
	})
}

func (s Server) GetFavorites(c *gin.Context) {
	c.JSON(http.StatusOK, api.TransformFavorites(routes.CurrentDevice(c).Favorites))
}

func (s Server) AddFavorite(c *gin.Context) {
	var game api.FavoriteGame
	if err := c.ShouldBindJSON(&game); err != nil {
		badRequest(c, err)
		return
	}
	view := routes.CurrentDevice(c).Favorites
	if err := view.Add(c.Request.Context(), game); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.TransformFavorites(view))
}

// ToggleFavorite answers with the settled flip. A rolled back flip is still
// returned so the page can show the restored state.
func (s Server) ToggleFavorite(c *gin.Context) {
	var game api.FavoriteGame
	if err := c.ShouldBindJSON(&game); err != nil {
		badRequest(c, err)
		return
	}
	flip, err := routes.CurrentDevice(c).Favorites.Toggle(c.Request.Context(), game)
	if err != nil {
		code, _ := api.TransformError(err, c.Request.URL.Path)
		if code != http.StatusServiceUnavailable {
			respondError(c, err)
			return
		}
		log.Warn().Err(err).Int64("game", game.ID).Msg("favorite toggle rolled back")
		c.JSON(code, flip)
		return
	}
	c.JSON(http.StatusOK, flip)
}

func (s Server) RemoveFavorite(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	view := routes.CurrentDevice(c).Favorites
	if err := view.Remove(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.TransformFavorites(view))
}

func (s Server) FavoritesEvents(c *gin.Context) {
	view := routes.CurrentDevice(c).Favorites
	stream(c, "favorites", view.Store().Bus(), func() any {
		return api.TransformFavorites(view)
	})
}

func (s Server) session(c *gin.Context) api.Session {
	gate := routes.CurrentDevice(c).Gate
	id := gate.Current(c.Request.Context())
	return api.TransformSession(gate.State(), id)
}

func (s Server) Register(c *gin.Context) {
	var body api.Register
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	if _, err := routes.CurrentDevice(c).Gate.SignUp(c.Request.Context(), api.ToSignUpForm(body)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.session(c))
}

func (s Server) Login(c *gin.Context) {
	var body api.Login
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	if _, err := routes.CurrentDevice(c).Gate.SignIn(c.Request.Context(), api.ToSignInForm(body)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.session(c))
}

func (s Server) Logout(c *gin.Context) {
	routes.CurrentDevice(c).Gate.Logout()
	c.JSON(http.StatusOK, s.session(c))
}

func (s Server) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, s.session(c))
}

// ExchangeToken binds the device session to the bearer token verified by the
// request validator.
func (s Server) ExchangeToken(c *gin.Context) {
	claims, ok := validator.FromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.Error{Error: "missing id token"})
		return
	}
	routes.CurrentDevice(c).Gate.Resolve(routes.IdentityFromClaims(claims))
	c.JSON(http.StatusOK, s.session(c))
}

func (s Server) Dashboard(c *gin.Context) {
	d := routes.CurrentDevice(c)
	ctx := c.Request.Context()
	id := d.Gate.Current(ctx)
	if id == nil {
		respondError(c, errs.ErrAuthRequired)
		return
	}
	favs := d.Favorites.Favorites()
	c.JSON(http.StatusOK, api.Dashboard{
		User:           api.TransformUser(id),
		CartCount:      d.Cart.Count(ctx),
		FavoritesCount: len(favs),
		Favorites:      api.FavoriteGames(favs),
	})
}

func (s Server) SendContact(c *gin.Context) {
	var body api.Contact
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	uid := ""
	if id := routes.CurrentDevice(c).Gate.Current(ctx); id != nil {
		uid = id.UserID
	}
	msg, err := s.Contact.Send(ctx, api.ToContactMessage(body), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, api.ContactReceipt{ID: msg.ID, CreatedAt: msg.CreatedAt})
}
