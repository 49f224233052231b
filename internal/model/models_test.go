package model

import (
	"reflect"
	"strings"
	"testing"
)

func gormTag(t *testing.T, model interface{}, field string) string {
	t.Helper()
	f, ok := reflect.TypeOf(model).FieldByName(field)
	if !ok {
		t.Fatalf("field %s not found", field)
	}
	return f.Tag.Get("gorm")
}

// 分类删除后作品的分类引用必须置空，而不是被外键约束顶住。
func TestTitle_CategoryNullsOnDelete(t *testing.T) {
	tag := gormTag(t, Title{}, "Category")
	if !strings.Contains(tag, "OnDelete:SET NULL") {
		t.Fatalf("expected SET NULL constraint on Title.Category, got %q", tag)
	}
}

func TestReviewComment_CascadeOnDelete(t *testing.T) {
	if tag := gormTag(t, Review{}, "Title"); !strings.Contains(tag, "OnDelete:CASCADE") {
		t.Fatalf("expected CASCADE constraint on Review.Title, got %q", tag)
	}
	if tag := gormTag(t, Comment{}, "Review"); !strings.Contains(tag, "OnDelete:CASCADE") {
		t.Fatalf("expected CASCADE constraint on Comment.Review, got %q", tag)
	}
}

// (author, title) 联合唯一索引是「一人一评」约束的裁决者。
func TestReview_AuthorTitleUniqueIndex(t *testing.T) {
	authorTag := gormTag(t, Review{}, "AuthorID")
	titleTag := gormTag(t, Review{}, "TitleID")
	if !strings.Contains(authorTag, "uniqueIndex:uniq_author_title") ||
		!strings.Contains(titleTag, "uniqueIndex:uniq_author_title") {
		t.Fatalf("expected composite unique index on (AuthorID, TitleID), got %q / %q",
			authorTag, titleTag)
	}
}
