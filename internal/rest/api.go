package rest

import (
	"context"

	"github.com/dfryer1193/css3blog/blog/domain"
	"github.com/gin-gonic/gin"
)

const blogPostPath = "/blog/:slug/:id"

// PostService is the part of the application service the HTTP API needs
type PostService interface {
	NewPost(title, body string) *domain.BlogPost
	Save(ctx context.Context, p *domain.BlogPost, upload *domain.Upload) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*domain.BlogPost, error)
	List(ctx context.Context, limit, offset int) ([]*domain.BlogPost, error)
	RenderedHTML(ctx context.Context, p *domain.BlogPost) (string, error)
}

type Api struct {
	service PostService
	router  *Router
}

// NewApi registers the post endpoints on engine and the named blogpost route on router
func NewApi(engine *gin.Engine, service PostService, router *Router) *Api {
	a := &Api{
		service: service,
		router:  router,
	}

	postsV1 := engine.Group("posts/v1")
	{
		postsV1.GET("/", a.GetPosts)
		postsV1.GET("/:postId", a.GetPost)
		postsV1.POST("/", a.CreatePost)
		postsV1.PUT("/:postId", a.UpdatePost)
		postsV1.DELETE("/:postId", a.DeletePost)
	}

	engine.GET(blogPostPath, a.ServePost)
	router.Register(domain.RouteBlogPost, blogPostPath)

	return a
}
